// Package mail delivers account activation emails. Messages are published to
// a queue at signup time and a worker drains the queue and talks SMTP, so a
// slow mail server never blocks a signup request.
package mail

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ActivationMessage is the queue payload for one activation email.
type ActivationMessage struct {
	ID    string `json:"id"`
	To    string `json:"to"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// NewActivationMessage builds a payload with a fresh message id.
func NewActivationMessage(to, name, token string) ActivationMessage {
	return ActivationMessage{
		ID:    uuid.NewString(),
		To:    to,
		Name:  name,
		Token: token,
	}
}

// Publisher enqueues activation emails for delivery.
type Publisher interface {
	PublishActivation(ctx context.Context, msg ActivationMessage) error
}

// MemoryPublisher collects published messages in memory for tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []ActivationMessage
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) PublishActivation(_ context.Context, msg ActivationMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (p *MemoryPublisher) Messages() []ActivationMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ActivationMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/url"
	"text/template"
)

var activationTemplate = template.Must(template.New("activation").Parse(
	`From: {{.From}}
To: {{.To}}
Subject: Activate your Sonic Library account
MIME-Version: 1.0
Content-Type: text/plain; charset="utf-8"

Hi {{.Name}},

Welcome to Sonic Library. Confirm your email address to activate your
account:

{{.Link}}

The link expires in 24 hours. If you did not sign up, ignore this message.
`))

// Sender delivers a rendered activation email.
type Sender interface {
	SendActivation(ctx context.Context, msg ActivationMessage) error
}

// SMTPSender renders activation emails and submits them over SMTP.
type SMTPSender struct {
	addr        string
	auth        smtp.Auth
	from        string
	activateURL string
}

// NewSMTPSender builds a sender. activateURL is the frontend base used in the
// activation link; the token is appended as a query parameter.
func NewSMTPSender(host string, port int, username, password, from, activateURL string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr:        fmt.Sprintf("%s:%d", host, port),
		auth:        auth,
		from:        from,
		activateURL: activateURL,
	}
}

// SendActivation implements Sender.
func (s *SMTPSender) SendActivation(_ context.Context, msg ActivationMessage) error {
	body, err := renderActivation(s.from, s.activateURL, msg)
	if err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, body); err != nil {
		return fmt.Errorf("send activation email to %s: %w", msg.To, err)
	}
	return nil
}

func renderActivation(from, activateURL string, msg ActivationMessage) ([]byte, error) {
	link := activateURL + "?token=" + url.QueryEscape(msg.Token)
	var buf bytes.Buffer
	err := activationTemplate.Execute(&buf, map[string]string{
		"From": from,
		"To":   msg.To,
		"Name": msg.Name,
		"Link": link,
	})
	if err != nil {
		return nil, fmt.Errorf("render activation email: %w", err)
	}
	return buf.Bytes(), nil
}

// Worker consumes the activation queue and hands each message to the sender.
type Worker struct {
	queue  *RabbitPublisher
	sender Sender
}

func NewWorker(queue *RabbitPublisher, sender Sender) *Worker {
	return &Worker{queue: queue, sender: sender}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("mail worker started")
	return w.queue.Consume(ctx, func(ctx context.Context, msg ActivationMessage) error {
		if err := w.sender.SendActivation(ctx, msg); err != nil {
			return err
		}
		slog.Info("activation email sent", "message_id", msg.ID)
		return nil
	})
}

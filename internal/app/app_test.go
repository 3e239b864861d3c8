package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"soniclibrary/pkg/auth"
	"soniclibrary/pkg/cache"
	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/mail"
	"soniclibrary/pkg/storage"
	"soniclibrary/pkg/store"
)

const testPassword = "Str0ng!Password"

// fakeCatalog is an in-memory ExternalCatalog for tests.
type fakeCatalog struct {
	volumes     map[string]domain.ExternalBook
	searchCalls int
	getCalls    int
	fail        bool
}

func newFakeCatalog(volumes ...domain.ExternalBook) *fakeCatalog {
	c := &fakeCatalog{volumes: make(map[string]domain.ExternalBook)}
	for _, v := range volumes {
		c.volumes[v.ExternalID] = v
	}
	return c
}

func (c *fakeCatalog) Search(_ context.Context, _ string, _, _ int) ([]domain.ExternalBook, int64, error) {
	c.searchCalls++
	if c.fail {
		return nil, 0, errors.New("catalog unavailable")
	}
	out := make([]domain.ExternalBook, 0, len(c.volumes))
	for _, v := range c.volumes {
		out = append(out, v)
	}
	return out, int64(len(out)), nil
}

func (c *fakeCatalog) Get(_ context.Context, id string) (domain.ExternalBook, error) {
	c.getCalls++
	if c.fail {
		return domain.ExternalBook{}, errors.New("catalog unavailable")
	}
	v, ok := c.volumes[id]
	if !ok {
		return domain.ExternalBook{}, errors.New("volume not found")
	}
	return v, nil
}

// fakeGenerator returns a fixed completion.
type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	mail    *mail.MemoryPublisher
	catalog *fakeCatalog
	gen     *fakeGenerator
	objects *storage.MemoryObjectStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	memStore := store.NewMemoryStore()
	publisher := mail.NewMemoryPublisher()
	catalog := newFakeCatalog()
	gen := &fakeGenerator{}
	objects := storage.NewMemoryObjectStore()
	tokens, err := auth.NewTokenService("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	application, err := New(Config{
		Store:     memStore,
		Cache:     cache.NewMemoryCache(256),
		Tokens:    tokens,
		Mail:      publisher,
		Books:     catalog,
		Generator: gen,
		Objects:   objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testEnv{
		app:     application,
		store:   memStore,
		mail:    publisher,
		catalog: catalog,
		gen:     gen,
		objects: objects,
	}
}

// signUpActive registers and activates a user in one step.
func (e *testEnv) signUpActive(t *testing.T, name, email string) domain.User {
	t.Helper()
	ctx := context.Background()
	if _, err := e.app.SignUp(ctx, name, email, testPassword); err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	msgs := e.mail.Messages()
	token := msgs[len(msgs)-1].Token
	activated, err := e.app.Activate(ctx, token)
	if err != nil {
		t.Fatalf("activate %s: %v", email, err)
	}
	return activated
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *app.Error with kind %q, got %v", kind, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected kind %q, got %q (%v)", kind, appErr.Kind, err)
	}
}

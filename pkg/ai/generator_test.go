package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAICompatGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ID: abc\nTitle: Dune"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1", "test-key", "gpt-4o-mini")
	g.httpClient = srv.Client()
	text, err := g.GenerateText(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "ID: abc\nTitle: Dune" {
		t.Fatalf("unexpected completion %q", text)
	}
}

func TestOpenAICompatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1", "bad", "gpt-4o-mini")
	g.httpClient = srv.Client()
	if _, err := g.GenerateText(context.Background(), "", "prompt"); err == nil {
		t.Fatalf("expected api error")
	}
}

func TestOllamaGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"hello"}}`))
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "llama3")
	g.httpClient = srv.Client()
	text, err := g.GenerateText(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected completion %q", text)
	}
}

func TestGenerateTextRequiresModel(t *testing.T) {
	g := NewOpenAICompatGenerator("http://localhost:8000/v1", "", "")
	if _, err := g.GenerateText(context.Background(), "", "prompt"); err == nil {
		t.Fatalf("expected missing model error")
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"soniclibrary/internal/app"
	"soniclibrary/internal/ratelimit"
	"soniclibrary/pkg/auth"
	"soniclibrary/pkg/cache"
	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/mail"
	"soniclibrary/pkg/store"
)

const testPassword = "Str0ng!Password"

type serverEnv struct {
	server *Server
	mail   *mail.MemoryPublisher
	store  *store.MemoryStore
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	memStore := store.NewMemoryStore()
	publisher := mail.NewMemoryPublisher()
	tokens, err := auth.NewTokenService("test-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	core, err := app.New(app.Config{
		Store:  memStore,
		Cache:  cache.NewMemoryCache(256),
		Tokens: tokens,
		Mail:   publisher,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return &serverEnv{
		server: New(Config{App: core}),
		mail:   publisher,
		store:  memStore,
	}
}

func (e *serverEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

type dataEnvelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type pageEnvelope[T any] struct {
	Data       T                 `json:"data"`
	Pagination domain.Pagination `json:"pagination"`
	Status     string            `json:"status"`
}

// signUpLogin registers, activates via the queued token, and logs in.
func (e *serverEnv) signUpLogin(t *testing.T, name, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	msgs := e.mail.Messages()
	if len(msgs) == 0 {
		t.Fatalf("no activation message queued")
	}
	activation := msgs[len(msgs)-1].Token
	rec = e.do(t, http.MethodGet, "/auth/activate?token="+activation, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/auth/token", "", map[string]string{
		"email": email, "password": testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[dataEnvelope[loginResponse]](t, rec)
	if resp.Data.TokenType != "bearer" || resp.Data.AccessToken == "" {
		t.Fatalf("unexpected login payload: %+v", resp.Data)
	}
	return resp.Data.AccessToken
}

func TestSignupActivateLoginFlow(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Frank", "email": "frank@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Login before activation is refused and re-queues the email.
	rec = env.do(t, http.MethodPost, "/auth/token", "", map[string]string{
		"email": "frank@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("pre-activation login status = %d, want 401", rec.Code)
	}
	if got := len(env.mail.Messages()); got != 2 {
		t.Fatalf("queued messages = %d, want 2", got)
	}

	token := env.mail.Messages()[1].Token
	rec = env.do(t, http.MethodGet, "/auth/activate?token="+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/auth/token", "", map[string]string{
		"email": "frank@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sessionSet bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" && c.HttpOnly {
			sessionSet = true
		}
	}
	if !sessionSet {
		t.Fatalf("login did not set an HttpOnly session cookie")
	}
}

func TestActivateExpiredTokenRejected(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Nina", "email": "nina@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}

	issued := time.Now().Add(-26 * time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": "activate",
		"sub":   "nina@example.com",
		"iat":   issued.Unix(),
		"nbf":   issued.Unix(),
		"exp":   issued.Add(24 * time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/auth/activate?token="+expired, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expired activation status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestSessionCookieAuthorizes(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Grace", "grace@example.com")

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[dataEnvelope[domain.User]](t, rec)
	if resp.Data.Email != "grace@example.com" {
		t.Fatalf("me email = %q", resp.Data.Email)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	env := newServerEnv(t)
	for _, path := range []string{"/users/me", "/books", "/reviews/me", "/user-books/my-books", "/recommendations"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestBookCatalogEndpoints(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Heidi", "heidi@example.com")

	rec := env.do(t, http.MethodPost, "/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert", "genres": []string{"Science Fiction"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[dataEnvelope[domain.Book]](t, rec)
	if created.Data.ID == 0 {
		t.Fatalf("created book has no id")
	}

	// Duplicate title+author is a conflict.
	rec = env.do(t, http.MethodPost, "/books", token, map[string]any{
		"title": "Dune", "author": "Frank Herbert",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate book status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/books/%d", created.Data.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get book status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/books?search=dune&page=1&page_size=5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list books status = %d", rec.Code)
	}
	page := decode[pageEnvelope[[]domain.Book]](t, rec)
	if len(page.Data) != 1 || page.Pagination.TotalCount != 1 {
		t.Fatalf("filtered page = %+v", page)
	}

	rec = env.do(t, http.MethodGet, "/books/999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing book status = %d, want 404", rec.Code)
	}
}

func TestReviewOwnershipOverHTTP(t *testing.T) {
	env := newServerEnv(t)
	owner := env.signUpLogin(t, "Ivan", "ivan@example.com")
	other := env.signUpLogin(t, "Judy", "judy@example.com")

	rec := env.do(t, http.MethodPost, "/books", owner, map[string]any{
		"title": "Hyperion", "author": "Dan Simmons",
	})
	book := decode[dataEnvelope[domain.Book]](t, rec)

	rec = env.do(t, http.MethodPost, "/reviews", owner, map[string]any{
		"book_id": book.Data.ID, "content": "A pilgrimage worth taking.", "rate": 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create review status = %d, body %s", rec.Code, rec.Body.String())
	}
	review := decode[dataEnvelope[domain.Review]](t, rec)

	// Reads are open to any authenticated user; ownership only gates mutations.
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/reviews/%d", review.Data.ID), other, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get review status = %d, body %s", rec.Code, rec.Body.String())
	}
	fetched := decode[dataEnvelope[domain.Review]](t, rec)
	if fetched.Data.Content != "A pilgrimage worth taking." {
		t.Fatalf("unexpected review %+v", fetched.Data)
	}

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/reviews/%d", review.Data.ID), other, map[string]any{"rate": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update status = %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/reviews/%d", review.Data.ID), other, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/reviews/%d", review.Data.ID), owner, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete status = %d, want 204", rec.Code)
	}

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/reviews/%d", review.Data.ID), owner, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted review status = %d, want 404", rec.Code)
	}
}

func TestReviewTargetValidation(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Mallory", "mallory@example.com")

	rec := env.do(t, http.MethodPost, "/reviews", token, map[string]any{
		"content": "no target", "rate": 3,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no-target review status = %d, want 400", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/reviews", token, map[string]any{
		"book_id": 1, "external_book_id": "vol1", "content": "both targets", "rate": 3,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("both-targets review status = %d, want 400", rec.Code)
	}
}

func TestLibraryEndpoints(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Niaj", "niaj@example.com")

	rec := env.do(t, http.MethodPost, "/books", token, map[string]any{
		"title": "Mistborn", "author": "Brandon Sanderson",
	})
	book := decode[dataEnvelope[domain.Book]](t, rec)

	rec = env.do(t, http.MethodPost, "/user-books", token, map[string]any{
		"book_id": book.Data.ID, "status": "TO_READ",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add to library status = %d, body %s", rec.Code, rec.Body.String())
	}
	entry := decode[dataEnvelope[domain.UserBook]](t, rec)

	// The entry is reachable through the book it tracks.
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/user-books/book/%d", book.Data.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-book status = %d, body %s", rec.Code, rec.Body.String())
	}
	byBook := decode[dataEnvelope[domain.UserBook]](t, rec)
	if byBook.Data.ID != entry.Data.ID {
		t.Fatalf("by-book entry = %+v, want id %d", byBook.Data, entry.Data.ID)
	}

	// Adding the same book twice conflicts.
	rec = env.do(t, http.MethodPost, "/user-books", token, map[string]any{
		"book_id": book.Data.ID, "status": "READING",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate library add status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/user-books/%d", entry.Data.ID), token, map[string]string{"status": "READ"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Status path values are case-insensitive.
	rec = env.do(t, http.MethodGet, "/user-books/status/read", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-status status = %d", rec.Code)
	}
	byStatus := decode[dataEnvelope[[]domain.UserBookWithBook]](t, rec)
	if len(byStatus.Data) != 1 {
		t.Fatalf("READ entries = %d, want 1", len(byStatus.Data))
	}

	rec = env.do(t, http.MethodGet, "/user-books/my-books/paginated?page=1&page_size=5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("paginated status = %d", rec.Code)
	}
	page := decode[pageEnvelope[[]domain.UserBookWithBook]](t, rec)
	if page.Pagination.TotalCount != 1 || page.Pagination.TotalPages != 1 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/user-books/%d", entry.Data.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want 204", rec.Code)
	}
}

func TestExternalBookLibraryFlow(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Olga", "olga@example.com")

	rec := env.do(t, http.MethodPost, "/user-books", token, map[string]any{
		"external_book_id": "vol-42",
		"status":           "READING",
		"book": map[string]any{
			"title":     "Snow Crash",
			"authors":   []string{"Neal Stephenson"},
			"publisher": "Bantam",
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("external add status = %d, body %s", rec.Code, rec.Body.String())
	}
	entry := decode[dataEnvelope[domain.UserBook]](t, rec)

	rec = env.do(t, http.MethodGet, "/user-books/book/external/vol-42", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-external status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[dataEnvelope[domain.UserBook]](t, rec)
	if got.Data.ID != entry.Data.ID || got.Data.Status != domain.StatusReading {
		t.Fatalf("by-external entry = %+v, want id %d", got.Data, entry.Data.ID)
	}

	rec = env.do(t, http.MethodGet, "/user-books/book/external/vol-404", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown volume status = %d, want 404", rec.Code)
	}

	// External volumes need metadata the first time they are seen.
	rec = env.do(t, http.MethodPost, "/user-books", token, map[string]any{
		"external_book_id": "vol-43",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("metadata-less add status = %d, want 400", rec.Code)
	}
}

func TestGetUserProfileByID(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Rita", "rita@example.com")
	env.signUpLogin(t, "Sam", "sam@example.com")

	rec := env.do(t, http.MethodGet, "/users/2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get user status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[dataEnvelope[domain.User]](t, rec)
	if resp.Data.Email != "sam@example.com" {
		t.Fatalf("unexpected user %+v", resp.Data)
	}

	rec = env.do(t, http.MethodGet, "/users/999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing user status = %d, want 404", rec.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "", 3, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	env := newServerEnv(t)
	env.server.authLimiter = limiter

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/auth/token", "", map[string]string{
			"email": "nobody@example.com", "password": "wrong",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/auth/token", "", map[string]string{
		"email": "nobody@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("limited attempt status = %d, want 429", rec.Code)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newServerEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newServerEnv(t)
	token := env.signUpLogin(t, "Peggy", "peggy@example.com")

	rec := env.do(t, http.MethodGet, "/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pre-logout status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body %s", rec.Code, rec.Body.String())
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("logout did not clear the session cookie")
	}

	rec = env.do(t, http.MethodGet, "/users/me", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("post-logout status = %d, want 401", rec.Code)
	}
}

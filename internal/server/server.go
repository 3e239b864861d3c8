// Package server exposes the HTTP API. Handlers decode and validate transport
// concerns, then delegate to the app core.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"soniclibrary/internal/app"
	"soniclibrary/internal/ratelimit"
	"soniclibrary/internal/util"
	"soniclibrary/pkg/domain"
)

const sessionCookie = "session_token"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AuthLimiter    *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	SessionTTL     time.Duration
	SecureCookies  bool
}

// Server exposes HTTP endpoints for the library service.
type Server struct {
	app            *app.App
	authLimiter    *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	sessionTTL     time.Duration
	secureCookies  bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	s := &Server{
		app:            cfg.App,
		authLimiter:    cfg.AuthLimiter,
		trustedProxies: cfg.TrustedProxies,
		sessionTTL:     cfg.SessionTTL,
		secureCookies:  cfg.SecureCookies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.rateLimited(s.handleSignup))
	s.mux.HandleFunc("/auth/token", s.rateLimited(s.handleLogin))
	s.mux.HandleFunc("/auth/activate", s.handleActivate)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)

	// users
	s.mux.HandleFunc("/users", s.handleUsers)
	s.mux.Handle("/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("/users/me/profile", s.authenticated(s.handleMeProfile))
	s.mux.Handle("/users/me/profile-picture", s.authenticated(s.handleProfilePicture))
	s.mux.Handle("/users/", s.authenticated(s.handleUserByID))

	// books
	s.mux.Handle("/books", s.authenticated(s.handleBooks))
	s.mux.Handle("/books/popular", s.authenticated(s.handlePopularBooks))
	s.mux.Handle("/books/search-external", s.authenticated(s.handleSearchExternal))
	s.mux.Handle("/books/external/", s.authenticated(s.handleExternalBook))
	s.mux.Handle("/books/", s.authenticated(s.handleBookByID))

	// reviews
	s.mux.Handle("/reviews", s.authenticated(s.handleReviews))
	s.mux.Handle("/reviews/me", s.authenticated(s.handleMyReviews))
	s.mux.Handle("/reviews/book/external/", s.authenticated(s.handleExternalBookReviews))
	s.mux.Handle("/reviews/book/", s.authenticated(s.handleBookReviews))
	s.mux.Handle("/reviews/", s.authenticated(s.handleReviewByID))

	// library
	s.mux.Handle("/user-books", s.authenticated(s.handleUserBooks))
	s.mux.Handle("/user-books/my-books", s.authenticated(s.handleMyBooks))
	s.mux.Handle("/user-books/my-books/paginated", s.authenticated(s.handleMyBooksPaginated))
	s.mux.Handle("/user-books/status/", s.authenticated(s.handleMyBooksByStatus))
	s.mux.Handle("/user-books/book/external/", s.authenticated(s.handleUserBookByExternalBook))
	s.mux.Handle("/user-books/book/", s.authenticated(s.handleUserBookByBook))
	s.mux.Handle("/user-books/", s.authenticated(s.handleUserBookByID))

	// recommendations
	s.mux.Handle("/recommendations", s.authenticated(s.handleRecommendations))
	s.mux.Handle("/recommendations/graph", s.authenticated(s.handleRecommendationGraph))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// authorize accepts the session cookie first, then a bearer header.
func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if user, ok := s.app.UserFromToken(cookie.Value); ok {
			return user, true
		}
	}
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

// rateLimited guards credential endpoints per client IP.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil {
			ip := util.ClientIP(r, s.trustedProxies)
			if !s.authLimiter.Allow(ip) {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// pathID extracts the numeric id that follows prefix.
func pathID(path, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pathSuffix extracts the single path element that follows prefix.
func pathSuffix(path, prefix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

package server

import (
	"encoding/json"
	"io"
	"net/http"

	"soniclibrary/pkg/domain"
)

const maxBodyBytes = 1 << 20

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.app.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeMessage(w, http.StatusCreated, user, "Account created, check your email to activate it")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, token, err := s.app.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	s.setSessionCookie(w, token)
	writeMessage(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, "Login successful")
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token := r.URL.Query().Get("token")
	user, err := s.app.Activate(r.Context(), token)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, user, "Account activated")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		s.app.Logout(cookie.Value)
	} else if token, ok := bearerToken(r); ok {
		s.app.Logout(token)
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, nil, "Logged out")
}

// handleUsers covers POST /users (signup alias) and GET /users.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSignup(w, r)
	case http.MethodGet:
		if _, ok := s.authorize(r); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		users, err := s.app.ListUsers()
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, users)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := pathID(r.URL.Path, "/users/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	user, err := s.app.GetUser(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, user)
	case http.MethodPut:
		var req updateProfileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		updated, err := s.app.UpdateProfile(user, req.Name, req.Email)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

// handleMeProfile serves the profile view with a resolved avatar URL.
func (s *Server) handleMeProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		url, err := s.app.ProfilePictureURL(r.Context(), user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{
			"user":                user,
			"profile_picture_url": url,
		})
	case http.MethodPut:
		var req updateProfileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		updated, err := s.app.UpdateProfile(user, req.Name, req.Email)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProfilePicture(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes())
	if err := r.ParseMultipartForm(s.app.MaxUploadBytes()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	updated, err := s.app.UploadProfilePicture(r.Context(), user, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

package server

import (
	"net/http"

	"soniclibrary/pkg/domain"
)

type createReviewRequest struct {
	BookID         int64  `json:"book_id"`
	ExternalBookID string `json:"external_book_id"`
	Content        string `json:"content"`
	Rate           int    `json:"rate"`
}

type updateReviewRequest struct {
	Content *string `json:"content"`
	Rate    *int    `json:"rate"`
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := s.app.CreateReview(user, domain.Review{
		BookID:         req.BookID,
		ExternalBookID: req.ExternalBookID,
		Content:        req.Content,
		Rate:           req.Rate,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, review)
}

func (s *Server) handleMyReviews(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reviews, err := s.app.ListMyReviews(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, reviews)
}

func (s *Server) handleExternalBookReviews(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	externalID, ok := pathSuffix(r.URL.Path, "/reviews/book/external/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	reviews, err := s.app.ListExternalBookReviews(externalID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, reviews)
}

func (s *Server) handleBookReviews(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	bookID, ok := pathID(r.URL.Path, "/reviews/book/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	reviews, err := s.app.ListBookReviews(bookID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, reviews)
}

func (s *Server) handleReviewByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r.URL.Path, "/reviews/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		review, err := s.app.GetReview(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, review)
	case http.MethodPut:
		var req updateReviewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		review, err := s.app.UpdateReview(user, id, req.Content, req.Rate)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, review)
	case http.MethodDelete:
		if err := s.app.DeleteReview(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

package server

import (
	"net/http"

	"soniclibrary/pkg/domain"
)

type createBookRequest struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Genres      []string `json:"genres"`
	Description string   `json:"description"`
	ISBN        string   `json:"isbn"`
	ImageURL    string   `json:"image_url"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, _ domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req createBookRequest
		if !decodeBody(w, r, &req) {
			return
		}
		book, err := s.app.CreateBook(domain.Book{
			Title:       req.Title,
			Author:      req.Author,
			Genres:      req.Genres,
			Description: req.Description,
			ISBN:        req.ISBN,
			ImageURL:    req.ImageURL,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusCreated, book)
	case http.MethodGet:
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 10)
		books, pagination, err := s.app.FilterBooks(r.URL.Query().Get("search"), r.URL.Query().Get("genre"), page, pageSize)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writePage(w, books, pagination)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handlePopularBooks(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.PopularBooks()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, books)
}

func (s *Server) handleSearchExternal(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	books, pagination, err := s.app.SearchExternal(r.Context(), query, page, pageSize)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writePage(w, books, pagination)
}

func (s *Server) handleExternalBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	externalID, ok := pathSuffix(r.URL.Path, "/books/external/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	book, err := s.app.GetExternalBook(r.Context(), externalID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, book)
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := pathID(r.URL.Path, "/books/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	book, err := s.app.GetBook(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, book)
}

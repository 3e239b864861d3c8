package server

import (
	"net/http"
	"strings"

	"soniclibrary/pkg/domain"
)

type addUserBookRequest struct {
	BookID         int64            `json:"book_id"`
	ExternalBookID string           `json:"external_book_id"`
	Status         string           `json:"status"`
	Book           *userBookPayload `json:"book"`
}

// userBookPayload carries the volume metadata needed to materialize an
// external book when it is first added to a library.
type userBookPayload struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description"`
	PageCount     int      `json:"page_count"`
	PublishedDate string   `json:"published_date"`
	Publisher     string   `json:"publisher"`
	ISBN          string   `json:"isbn"`
	Thumbnail     string   `json:"thumbnail"`
	Categories    []string `json:"categories"`
	Language      string   `json:"language"`
}

type updateUserBookRequest struct {
	Status string `json:"status"`
}

// readingStatus normalizes client-supplied status values; path and payload
// values are accepted case-insensitively.
func readingStatus(raw string) domain.ReadingStatus {
	return domain.ReadingStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

func (s *Server) handleUserBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addUserBookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := readingStatus(req.Status)
	var (
		entry domain.UserBook
		err   error
	)
	if req.BookID != 0 {
		entry, err = s.app.AddBookToLibrary(user, req.BookID, status)
	} else {
		meta := domain.ExternalBook{ExternalID: req.ExternalBookID}
		if req.Book != nil {
			meta.Title = req.Book.Title
			meta.Authors = req.Book.Authors
			meta.Description = req.Book.Description
			meta.PageCount = req.Book.PageCount
			meta.PublishedDate = req.Book.PublishedDate
			meta.Publisher = req.Book.Publisher
			meta.ISBN = req.Book.ISBN
			meta.Thumbnail = req.Book.Thumbnail
			meta.Categories = req.Book.Categories
			meta.Language = req.Book.Language
		}
		entry, err = s.app.AddExternalBookToLibrary(user, meta, status)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, entry)
}

func (s *Server) handleMyBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListLibraryAll(user, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, books)
}

func (s *Server) handleMyBooksPaginated(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var status *domain.ReadingStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := readingStatus(raw)
		status = &st
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	books, pagination, err := s.app.ListLibrary(user, status, page, pageSize)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writePage(w, books, pagination)
}

func (s *Server) handleMyBooksByStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	raw, ok := pathSuffix(r.URL.Path, "/user-books/status/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	status := readingStatus(raw)
	books, err := s.app.ListLibraryAll(user, &status)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, books)
}

func (s *Server) handleUserBookByBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, ok := pathID(r.URL.Path, "/user-books/book/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	entry, err := s.app.GetLibraryEntryByBook(user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, entry)
}

func (s *Server) handleUserBookByExternalBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	externalID, ok := pathSuffix(r.URL.Path, "/user-books/book/external/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	entry, err := s.app.GetLibraryEntryByExternalBook(user, externalID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, entry)
}

func (s *Server) handleUserBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r.URL.Path, "/user-books/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req updateUserBookRequest
		if !decodeBody(w, r, &req) {
			return
		}
		entry, err := s.app.UpdateLibraryStatus(user, id, readingStatus(req.Status))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, entry)
	case http.MethodDelete:
		if err := s.app.RemoveFromLibrary(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

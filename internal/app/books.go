package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/store"
)

const (
	popularCacheKey     = "books:popular"
	searchCachePrefix   = "books:search:"
	externalCachePrefix = "books:external:"
	popularLimit        = 10
	descriptionMaxLen   = 1000
	defaultLanguage     = "pt-BR"
)

// CreateBook adds a book to the local catalog. Genres may arrive as a list or
// as a single slash-separated string ("Fantasy/Adventure"); unknown genres are
// created on demand.
func (a *App) CreateBook(b domain.Book) (domain.Book, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	if b.Title == "" {
		return domain.Book{}, Validation("title required")
	}
	if b.Author == "" {
		return domain.Book{}, Validation("author required")
	}
	if len(b.Description) > descriptionMaxLen {
		return domain.Book{}, Validation(fmt.Sprintf("description must be at most %d characters", descriptionMaxLen))
	}
	b.Genres = NormalizeGenres(b.Genres)
	if b.Language == "" {
		b.Language = defaultLanguage
	}
	if _, exists, err := a.store.GetBookByTitleAuthor(b.Title, b.Author); err != nil {
		return domain.Book{}, fmt.Errorf("check duplicate book: %w", err)
	} else if exists {
		return domain.Book{}, Conflict("book already in catalog")
	}
	if b.ISBN != "" {
		isbn, err := normalizeISBN(b.ISBN)
		if err != nil {
			return domain.Book{}, err
		}
		b.ISBN = isbn
	}
	created, err := a.store.CreateBook(b)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Book{}, Conflict("book already in catalog")
		}
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	a.cache.Delete(popularCacheKey)
	return created, nil
}

// GetBook fetches one local book.
func (a *App) GetBook(id int64) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, NotFound("book not found")
	}
	return book, nil
}

// FilterBooks returns one page of the catalog, optionally filtered by a
// title/author search term and an exact genre.
func (a *App) FilterBooks(search, genre string, page, pageSize int) ([]domain.Book, domain.Pagination, error) {
	page, pageSize = normalizePage(page, pageSize)
	books, total, err := a.store.FilterBooksPage(strings.TrimSpace(search), strings.TrimSpace(genre), page, pageSize)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("filter books: %w", err)
	}
	return books, domain.NewPagination(page, pageSize, total), nil
}

// PopularBooks returns the most reviewed books, cached for a few minutes.
func (a *App) PopularBooks() ([]domain.Book, error) {
	if raw, ok := a.cache.Get(popularCacheKey); ok {
		var books []domain.Book
		if err := json.Unmarshal([]byte(raw), &books); err == nil {
			return books, nil
		}
	}
	books, err := a.store.PopularBooks(popularLimit)
	if err != nil {
		return nil, fmt.Errorf("popular books: %w", err)
	}
	if raw, err := json.Marshal(books); err == nil {
		a.cache.Set(popularCacheKey, string(raw), a.popularCacheTTL)
	}
	return books, nil
}

type cachedSearch struct {
	Books []domain.ExternalBook `json:"books"`
	Total int64                 `json:"total"`
}

// SearchExternal queries the external catalog, caching each (query, page)
// combination.
func (a *App) SearchExternal(ctx context.Context, query string, page, pageSize int) ([]domain.ExternalBook, domain.Pagination, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.Pagination{}, Validation("search query required")
	}
	if a.books == nil {
		return nil, domain.Pagination{}, Upstream("external catalog not configured", nil)
	}
	page, pageSize = normalizePage(page, pageSize)

	key := fmt.Sprintf("%s%s:%d:%d", searchCachePrefix, strings.ToLower(query), page, pageSize)
	if raw, ok := a.cache.Get(key); ok {
		var cached cachedSearch
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached.Books, domain.NewPagination(page, pageSize, cached.Total), nil
		}
	}

	books, total, err := a.books.Search(ctx, query, page, pageSize)
	if err != nil {
		return nil, domain.Pagination{}, Upstream("external catalog search failed", err)
	}
	if raw, err := json.Marshal(cachedSearch{Books: books, Total: total}); err == nil {
		a.cache.Set(key, string(raw), a.searchCacheTTL)
	}
	return books, domain.NewPagination(page, pageSize, total), nil
}

// GetExternalBook fetches a single external volume, cached by id.
func (a *App) GetExternalBook(ctx context.Context, externalID string) (domain.ExternalBook, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.ExternalBook{}, Validation("external book id required")
	}
	if a.books == nil {
		return domain.ExternalBook{}, Upstream("external catalog not configured", nil)
	}
	key := externalCachePrefix + externalID
	if raw, ok := a.cache.Get(key); ok {
		var book domain.ExternalBook
		if err := json.Unmarshal([]byte(raw), &book); err == nil {
			return book, nil
		}
	}
	book, err := a.books.Get(ctx, externalID)
	if err != nil {
		return domain.ExternalBook{}, Upstream("external catalog lookup failed", err)
	}
	if raw, err := json.Marshal(book); err == nil {
		a.cache.Set(key, string(raw), a.searchCacheTTL)
	}
	return book, nil
}

// NormalizeGenres flattens slash-separated entries, trims whitespace, and
// drops duplicates while preserving order.
func NormalizeGenres(genres []string) []string {
	seen := make(map[string]bool, len(genres))
	out := make([]string, 0, len(genres))
	for _, raw := range genres {
		for _, part := range strings.Split(raw, "/") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			lower := strings.ToLower(name)
			if seen[lower] {
				continue
			}
			seen[lower] = true
			out = append(out, name)
		}
	}
	return out
}

// normalizeISBN strips separators and accepts 10 or 13 digit forms.
func normalizeISBN(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == 'X' || r == 'x' {
			return r
		}
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if len(cleaned) != 10 && len(cleaned) != 13 {
		return "", Validation("ISBN must have 10 or 13 digits")
	}
	for i, r := range cleaned {
		if r >= '0' && r <= '9' {
			continue
		}
		// A trailing X check digit is valid for ISBN-10 only.
		if (r == 'X' || r == 'x') && len(cleaned) == 10 && i == 9 {
			continue
		}
		return "", Validation("ISBN must have 10 or 13 digits")
	}
	return strings.ToUpper(cleaned), nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 40 {
		pageSize = 10
	}
	return page, pageSize
}

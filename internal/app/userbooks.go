package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/store"
)

// AddBookToLibrary tracks a local book in the caller's library. Status
// defaults to TO_READ.
func (a *App) AddBookToLibrary(user domain.User, bookID int64, status domain.ReadingStatus) (domain.UserBook, error) {
	if bookID <= 0 {
		return domain.UserBook{}, Validation("book_id required")
	}
	if status != "" && !domain.ValidStatus(status) {
		return domain.UserBook{}, Validation("status must be one of TO_READ, READING, READ")
	}
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return domain.UserBook{}, NotFound("book not found")
	}
	entry, err := a.store.CreateUserBook(domain.UserBook{
		UserID: user.ID,
		BookID: bookID,
		Status: status,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.UserBook{}, ErrBookAlreadyInLibrary
		}
		return domain.UserBook{}, fmt.Errorf("create library entry: %w", err)
	}
	a.invalidateLibraryCaches(user.ID)
	audit("library.add", user.ID, "book_id", bookID)
	return entry, nil
}

// AddExternalBookToLibrary tracks an external volume. The volume's metadata is
// required so a local catalog row can be materialized; the library entry then
// points at that row. Concurrent first writers are resolved by re-reading
// after a duplicate error.
func (a *App) AddExternalBookToLibrary(user domain.User, meta domain.ExternalBook, status domain.ReadingStatus) (domain.UserBook, error) {
	meta.ExternalID = strings.TrimSpace(meta.ExternalID)
	if meta.ExternalID == "" {
		return domain.UserBook{}, Validation("external_book_id required")
	}
	if strings.TrimSpace(meta.Title) == "" || len(meta.Authors) == 0 {
		return domain.UserBook{}, Validation("book metadata (title, authors) required for external books")
	}
	if status != "" && !domain.ValidStatus(status) {
		return domain.UserBook{}, Validation("status must be one of TO_READ, READING, READ")
	}

	book, err := a.materializeExternalBook(meta)
	if err != nil {
		return domain.UserBook{}, err
	}

	entry, err := a.store.CreateUserBook(domain.UserBook{
		UserID:         user.ID,
		BookID:         book.ID,
		ExternalBookID: "",
		Status:         status,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.UserBook{}, ErrBookAlreadyInLibrary
		}
		return domain.UserBook{}, fmt.Errorf("create library entry: %w", err)
	}
	a.invalidateLibraryCaches(user.ID)
	audit("library.add_external", user.ID, "external_id", meta.ExternalID)
	return entry, nil
}

// materializeExternalBook returns the local row for an external volume,
// creating it from the supplied metadata when absent.
func (a *App) materializeExternalBook(meta domain.ExternalBook) (domain.Book, error) {
	book, ok, err := a.store.GetBookByExternalID(meta.ExternalID)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book by external id: %w", err)
	}
	if ok {
		return book, nil
	}
	description := meta.Description
	if len(description) > descriptionMaxLen {
		description = description[:descriptionMaxLen]
	}
	candidate := domain.Book{
		ExternalID:    meta.ExternalID,
		Title:         strings.TrimSpace(meta.Title),
		Author:        strings.Join(meta.Authors, ", "),
		Description:   description,
		PageCount:     meta.PageCount,
		PublishedDate: meta.PublishedDate,
		Publisher:     meta.Publisher,
		ImageURL:      meta.Thumbnail,
		Language:      meta.Language,
		Genres:        NormalizeGenres(meta.Categories),
	}
	if isbn, err := normalizeISBN(meta.ISBN); err == nil {
		candidate.ISBN = isbn
	}
	if raw, err := json.Marshal(meta); err == nil {
		candidate.SourceMetadata = raw
	}
	created, err := a.store.CreateBook(candidate)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, store.ErrDuplicate) {
		// Another request materialized the same volume first.
		book, ok, lookupErr := a.store.GetBookByExternalID(meta.ExternalID)
		if lookupErr == nil && ok {
			return book, nil
		}
	}
	return domain.Book{}, fmt.Errorf("materialize external book: %w", err)
}

// GetLibraryEntryByBook returns the caller's entry for a local catalog book.
func (a *App) GetLibraryEntryByBook(user domain.User, bookID int64) (domain.UserBook, error) {
	if bookID <= 0 {
		return domain.UserBook{}, Validation("book_id required")
	}
	entry, ok, err := a.store.GetUserBookByBook(user.ID, bookID)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch library entry: %w", err)
	}
	if !ok {
		return domain.UserBook{}, NotFound("library entry not found")
	}
	return entry, nil
}

// GetLibraryEntryByExternalBook returns the caller's entry for an external
// volume. External volumes are materialized into the local catalog on add, so
// a miss on the recorded external id falls back through the catalog row.
func (a *App) GetLibraryEntryByExternalBook(user domain.User, externalID string) (domain.UserBook, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.UserBook{}, Validation("external_book_id required")
	}
	entry, ok, err := a.store.GetUserBookByExternalBook(user.ID, externalID)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch library entry: %w", err)
	}
	if ok {
		return entry, nil
	}
	book, ok, err := a.store.GetBookByExternalID(externalID)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch book by external id: %w", err)
	}
	if !ok {
		return domain.UserBook{}, NotFound("library entry not found")
	}
	entry, ok, err = a.store.GetUserBookByBook(user.ID, book.ID)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch library entry: %w", err)
	}
	if !ok {
		return domain.UserBook{}, NotFound("library entry not found")
	}
	return entry, nil
}

// ListLibrary returns one page of the caller's library, optionally filtered
// by reading status.
func (a *App) ListLibrary(user domain.User, status *domain.ReadingStatus, page, pageSize int) ([]domain.UserBookWithBook, domain.Pagination, error) {
	if status != nil && !domain.ValidStatus(*status) {
		return nil, domain.Pagination{}, Validation("status must be one of TO_READ, READING, READ")
	}
	page, pageSize = normalizePage(page, pageSize)
	entries, total, err := a.store.ListUserBooksPage(user.ID, status, page, pageSize)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("list library: %w", err)
	}
	return entries, domain.NewPagination(page, pageSize, total), nil
}

// ListLibraryAll returns the caller's entire library, optionally filtered
// by reading status.
func (a *App) ListLibraryAll(user domain.User, status *domain.ReadingStatus) ([]domain.UserBookWithBook, error) {
	if status != nil && !domain.ValidStatus(*status) {
		return nil, Validation("status must be one of TO_READ, READING, READ")
	}
	entries, err := a.store.ListUserBooks(user.ID, status)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	return entries, nil
}

// UpdateLibraryStatus moves the caller's library entry to a new status.
func (a *App) UpdateLibraryStatus(user domain.User, id int64, status domain.ReadingStatus) (domain.UserBook, error) {
	if !domain.ValidStatus(status) {
		return domain.UserBook{}, Validation("status must be one of TO_READ, READING, READ")
	}
	if _, err := a.ownedUserBook(user, id); err != nil {
		return domain.UserBook{}, err
	}
	entry, err := a.store.UpdateUserBookStatus(id, status)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("update library entry: %w", err)
	}
	a.invalidateLibraryCaches(user.ID)
	audit("library.status", user.ID, "entry_id", id, "status", string(status))
	return entry, nil
}

// RemoveFromLibrary deletes the caller's library entry. Reviews are kept.
func (a *App) RemoveFromLibrary(user domain.User, id int64) error {
	if _, err := a.ownedUserBook(user, id); err != nil {
		return err
	}
	if err := a.store.DeleteUserBook(id); err != nil {
		return fmt.Errorf("delete library entry: %w", err)
	}
	a.invalidateLibraryCaches(user.ID)
	audit("library.remove", user.ID, "entry_id", id)
	return nil
}

// ownedUserBook is the single ownership check for library mutations.
func (a *App) ownedUserBook(user domain.User, id int64) (domain.UserBook, error) {
	entry, ok, err := a.store.GetUserBook(id)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch library entry: %w", err)
	}
	if !ok {
		return domain.UserBook{}, NotFound("library entry not found")
	}
	if entry.UserID != user.ID {
		return domain.UserBook{}, Forbidden("library entry belongs to another user")
	}
	return entry, nil
}

// invalidateLibraryCaches drops the caller's cached recommendations; they are
// derived from the library contents.
func (a *App) invalidateLibraryCaches(userID int64) {
	a.cache.DeletePrefix(recommendCachePrefix + strconv.FormatInt(userID, 10) + ":")
}

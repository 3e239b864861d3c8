package store

import (
	"errors"

	"soniclibrary/pkg/domain"
)

var (
	// ErrDuplicate indicates a uniqueness violation (email, library entry,
	// external book id).
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidTarget indicates a review or library entry that does not
	// reference exactly one of a local book or an external book id.
	ErrInvalidTarget = errors.New("exactly one of book_id and external_book_id must be set")
	// ErrRateRange indicates a rating outside 1..5.
	ErrRateRange = errors.New("rate must be between 1 and 5")
	// ErrNotFound indicates the row does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store defines persistence operations for users, books, genres, reviews, and
// library entries.
type Store interface {
	// users
	CreateUser(u domain.User) (domain.User, error)
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id int64) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UpdateUser(u domain.User) error

	// books
	CreateBook(b domain.Book) (domain.Book, error)
	GetBook(id int64) (domain.Book, bool, error)
	GetBookByExternalID(externalID string) (domain.Book, bool, error)
	GetBookByTitleAuthor(title, author string) (domain.Book, bool, error)
	FilterBooks(search, genre string) ([]domain.Book, error)
	FilterBooksPage(search, genre string, page, pageSize int) ([]domain.Book, int64, error)
	PopularBooks(limit int) ([]domain.Book, error)

	// reviews
	CreateReview(r domain.Review) (domain.Review, error)
	GetReview(id int64) (domain.Review, bool, error)
	ListReviewsByBook(bookID int64) ([]domain.ReviewWithUser, error)
	ListReviewsByExternalBook(externalID string) ([]domain.ReviewWithUser, error)
	ListReviewsByUser(userID int64) ([]domain.Review, error)
	UpdateReview(r domain.Review) error
	DeleteReview(id int64) error

	// library entries
	CreateUserBook(ub domain.UserBook) (domain.UserBook, error)
	GetUserBook(id int64) (domain.UserBook, bool, error)
	ListUserBooks(userID int64, status *domain.ReadingStatus) ([]domain.UserBookWithBook, error)
	ListUserBooksPage(userID int64, status *domain.ReadingStatus, page, pageSize int) ([]domain.UserBookWithBook, int64, error)
	GetUserBookByBook(userID, bookID int64) (domain.UserBook, bool, error)
	GetUserBookByExternalBook(userID int64, externalID string) (domain.UserBook, bool, error)
	UpdateUserBookStatus(id int64, status domain.ReadingStatus) (domain.UserBook, error)
	DeleteUserBook(id int64) error
}

// ValidateReviewTarget checks the mutual-exclusion rule shared by reviews and
// library entries.
func ValidateReviewTarget(bookID int64, externalBookID string) error {
	if (bookID != 0) == (externalBookID != "") {
		return ErrInvalidTarget
	}
	return nil
}

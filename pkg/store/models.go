package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"not null"`
	Email          string `gorm:"uniqueIndex;not null"`
	PasswordHash   string `gorm:"not null"`
	IsActive       bool   `gorm:"not null;default:false"`
	ProfilePicture string
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

func (UserModel) TableName() string { return "users" }

type BookModel struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	ExternalID    *string `gorm:"uniqueIndex"`
	Title         string  `gorm:"not null;index"`
	Author        string  `gorm:"not null;index"`
	Description   string  `gorm:"size:1000"`
	PageCount     int
	PublishedDate string
	Publisher     string
	ISBN          *string `gorm:"size:13;uniqueIndex"`
	ImageURL      string
	Language      string `gorm:"default:pt-BR"`
	// Raw external volume payload captured when the row is materialized from
	// the external catalog.
	SourceMetadata datatypes.JSON `gorm:"type:jsonb"`
	Genres         []GenreModel   `gorm:"many2many:book_genres;joinForeignKey:BookID;joinReferences:GenreID"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time
}

func (BookModel) TableName() string { return "books" }

type GenreModel struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (GenreModel) TableName() string { return "genres" }

type ReviewModel struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	BookID         *int64  `gorm:"index;check:chk_reviews_target,(book_id IS NULL) <> (external_book_id IS NULL)"`
	ExternalBookID *string `gorm:"index"`
	UserID         int64   `gorm:"not null;index"`
	Content        string  `gorm:"not null"`
	Rate           int     `gorm:"not null;check:chk_reviews_rate,rate BETWEEN 1 AND 5"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (ReviewModel) TableName() string { return "reviews" }

type UserBookModel struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	UserID         int64   `gorm:"not null;index;uniqueIndex:uq_user_book;uniqueIndex:uq_user_external_book"`
	BookID         *int64  `gorm:"uniqueIndex:uq_user_book;check:chk_user_books_target,(book_id IS NULL) <> (external_book_id IS NULL)"`
	ExternalBookID *string `gorm:"uniqueIndex:uq_user_external_book"`
	Status         string  `gorm:"not null;default:TO_READ"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (UserBookModel) TableName() string { return "user_books" }

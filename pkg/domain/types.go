package domain

import (
	"encoding/json"
	"time"
)

// ReadingStatus tracks where a library entry sits in the user's reading flow.
type ReadingStatus string

const (
	StatusToRead  ReadingStatus = "TO_READ"
	StatusReading ReadingStatus = "READING"
	StatusRead    ReadingStatus = "READ"
)

// ValidStatus reports whether s is one of the known reading statuses.
func ValidStatus(s ReadingStatus) bool {
	switch s {
	case StatusToRead, StatusReading, StatusRead:
		return true
	}
	return false
}

// User is a registered account. Accounts start inactive and are activated
// through an emailed token.
type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Book is a locally catalogued book. ExternalID is set when the row was
// materialized from the external catalog.
type Book struct {
	ID            int64    `json:"id"`
	ExternalID    string   `json:"external_id,omitempty"`
	Title         string   `json:"title"`
	Author        string   `json:"author"`
	Description   string   `json:"description,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	ISBN          string   `json:"isbn,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	Language      string   `json:"language,omitempty"`
	Genres        []string `json:"genres"`
	// SourceMetadata holds the raw external volume payload the row was
	// materialized from. Kept out of API responses.
	SourceMetadata json.RawMessage `json:"-"`
}

// Genre is a named book category, created on demand.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Review is a user's rating and write-up for a book. Exactly one of BookID or
// ExternalBookID is set.
type Review struct {
	ID             int64     `json:"id"`
	BookID         int64     `json:"book_id,omitempty"`
	ExternalBookID string    `json:"external_book_id,omitempty"`
	UserID         int64     `json:"user_id"`
	Content        string    `json:"content"`
	Rate           int       `json:"rate"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ReviewWithUser is a review joined with the reviewer's display fields.
type ReviewWithUser struct {
	Review
	UserName           string `json:"user_name"`
	UserProfilePicture string `json:"user_profile_picture,omitempty"`
}

// UserBook is a library entry: the association between a user and a book plus
// its reading status. Exactly one of BookID or ExternalBookID is set.
type UserBook struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"user_id"`
	BookID         int64         `json:"book_id,omitempty"`
	ExternalBookID string        `json:"external_book_id,omitempty"`
	Status         ReadingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// UserBookWithBook is a library entry joined with its local book, when one
// exists.
type UserBookWithBook struct {
	UserBook
	Book *Book `json:"book,omitempty"`
}

// ExternalBook is a projection of an external catalog volume.
type ExternalBook struct {
	ExternalID    string   `json:"external_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Description   string   `json:"description,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	ISBN          string   `json:"isbn,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Language      string   `json:"language,omitempty"`
}

// Recommendation is one recommended volume with the model's justification.
type Recommendation struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// GraphNode is one book in the similarity graph rendered by the UI.
type GraphNode struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Author string  `json:"author,omitempty"`
	Genre  string  `json:"genre,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

// GraphEdge links two nodes with the strongest detected relationship.
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

// Graph is the full similarity graph for a user's library.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Pagination describes one page of a larger result set.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
	PageSize    int   `json:"page_size"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
	StartIndex  int64 `json:"start_index"`
	EndIndex    int64 `json:"end_index"`
}

// NewPagination computes page metadata for a total row count.
func NewPagination(page, pageSize int, total int64) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	start := int64(page-1)*int64(pageSize) + 1
	end := int64(page) * int64(pageSize)
	if total == 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		PageSize:    pageSize,
		HasNext:     page < totalPages,
		HasPrevious: page > 1 && total > 0,
		StartIndex:  start,
		EndIndex:    end,
	}
}

package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"soniclibrary/pkg/domain"
)

// MemoryStore keeps everything in process memory. It enforces the same
// uniqueness and target rules as the Postgres schema so service tests exercise
// real failure paths.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[int64]domain.User
	books     map[int64]domain.Book
	genres    map[string]int64
	reviews   map[int64]domain.Review
	userBooks map[int64]domain.UserBook
	nextID    map[string]int64
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]domain.User),
		books:     make(map[int64]domain.Book),
		genres:    make(map[string]int64),
		reviews:   make(map[int64]domain.Review),
		userBooks: make(map[int64]domain.UserBook),
		nextID:    make(map[string]int64),
	}
}

func (s *MemoryStore) nextIDFor(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return domain.User{}, ErrDuplicate
		}
	}
	u.ID = s.nextIDFor("user")
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id int64) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) UpdateUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) CreateBook(b domain.Book) (domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.books {
		if b.ExternalID != "" && existing.ExternalID == b.ExternalID {
			return domain.Book{}, ErrDuplicate
		}
		if b.ISBN != "" && existing.ISBN == b.ISBN {
			return domain.Book{}, ErrDuplicate
		}
	}
	genres := make([]string, 0, len(b.Genres))
	for _, name := range b.Genres {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := s.genres[name]; !ok {
			s.genres[name] = s.nextIDFor("genre")
		}
		genres = append(genres, name)
	}
	b.Genres = genres
	b.ID = s.nextIDFor("book")
	s.books[b.ID] = b
	return b, nil
}

// GenreCount reports how many distinct genre rows exist (test hook).
func (s *MemoryStore) GenreCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.genres)
}

func (s *MemoryStore) GetBook(id int64) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	return b, ok, nil
}

func (s *MemoryStore) GetBookByExternalID(externalID string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ExternalID != "" && b.ExternalID == externalID {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

func (s *MemoryStore) GetBookByTitleAuthor(title, author string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if strings.EqualFold(b.Title, title) && strings.EqualFold(b.Author, author) {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

func (s *MemoryStore) matchBooks(search, genre string) []domain.Book {
	var res []domain.Book
	needle := strings.ToLower(search)
	for _, b := range s.books {
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Title), needle) &&
			!strings.Contains(strings.ToLower(b.Author), needle) {
			continue
		}
		if genre != "" {
			found := false
			for _, g := range b.Genres {
				if g == genre {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *MemoryStore) FilterBooks(search, genre string) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchBooks(search, genre), nil
}

func (s *MemoryStore) FilterBooksPage(search, genre string, page, pageSize int) ([]domain.Book, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	all := s.matchBooks(search, genre)
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []domain.Book{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) PopularBooks(limit int) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	counts := make(map[int64]int)
	for _, r := range s.reviews {
		if r.BookID != 0 {
			counts[r.BookID]++
		}
	}
	books := make([]domain.Book, 0, len(s.books))
	for _, b := range s.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool {
		ci, cj := counts[books[i].ID], counts[books[j].ID]
		if ci != cj {
			return ci > cj
		}
		return books[i].ID < books[j].ID
	})
	if len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (s *MemoryStore) CreateReview(r domain.Review) (domain.Review, error) {
	if r.Rate < 1 || r.Rate > 5 {
		return domain.Review{}, ErrRateRange
	}
	if err := ValidateReviewTarget(r.BookID, r.ExternalBookID); err != nil {
		return domain.Review{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextIDFor("review")
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.reviews[r.ID] = r
	return r, nil
}

func (s *MemoryStore) GetReview(id int64) (domain.Review, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	return r, ok, nil
}

func (s *MemoryStore) joinUser(r domain.Review) domain.ReviewWithUser {
	joined := domain.ReviewWithUser{Review: r}
	if u, ok := s.users[r.UserID]; ok {
		joined.UserName = u.Name
		joined.UserProfilePicture = u.ProfilePicture
	}
	return joined
}

func (s *MemoryStore) ListReviewsByBook(bookID int64) ([]domain.ReviewWithUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.ReviewWithUser, 0)
	for _, r := range s.reviews {
		if r.BookID == bookID {
			res = append(res, s.joinUser(r))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) ListReviewsByExternalBook(externalID string) ([]domain.ReviewWithUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.ReviewWithUser, 0)
	for _, r := range s.reviews {
		if r.ExternalBookID != "" && r.ExternalBookID == externalID {
			res = append(res, s.joinUser(r))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) ListReviewsByUser(userID int64) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.Review, 0)
	for _, r := range s.reviews {
		if r.UserID == userID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) UpdateReview(r domain.Review) error {
	if r.Rate < 1 || r.Rate > 5 {
		return ErrRateRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reviews[r.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Content = r.Content
	existing.Rate = r.Rate
	existing.UpdatedAt = time.Now().UTC()
	s.reviews[r.ID] = existing
	return nil
}

func (s *MemoryStore) DeleteReview(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[id]; !ok {
		return ErrNotFound
	}
	delete(s.reviews, id)
	return nil
}

func (s *MemoryStore) CreateUserBook(ub domain.UserBook) (domain.UserBook, error) {
	if err := ValidateReviewTarget(ub.BookID, ub.ExternalBookID); err != nil {
		return domain.UserBook{}, err
	}
	if ub.Status == "" {
		ub.Status = domain.StatusToRead
	}
	if !domain.ValidStatus(ub.Status) {
		return domain.UserBook{}, fmt.Errorf("invalid status %q", ub.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.userBooks {
		if existing.UserID != ub.UserID {
			continue
		}
		if ub.BookID != 0 && existing.BookID == ub.BookID {
			return domain.UserBook{}, ErrDuplicate
		}
		if ub.ExternalBookID != "" && existing.ExternalBookID == ub.ExternalBookID {
			return domain.UserBook{}, ErrDuplicate
		}
	}
	ub.ID = s.nextIDFor("user_book")
	now := time.Now().UTC()
	if ub.CreatedAt.IsZero() {
		ub.CreatedAt = now
	}
	ub.UpdatedAt = now
	s.userBooks[ub.ID] = ub
	return ub, nil
}

func (s *MemoryStore) GetUserBook(id int64) (domain.UserBook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ub, ok := s.userBooks[id]
	return ub, ok, nil
}

func (s *MemoryStore) collectUserBooks(userID int64, status *domain.ReadingStatus) []domain.UserBookWithBook {
	res := make([]domain.UserBookWithBook, 0)
	for _, ub := range s.userBooks {
		if ub.UserID != userID {
			continue
		}
		if status != nil && ub.Status != *status {
			continue
		}
		entry := domain.UserBookWithBook{UserBook: ub}
		if ub.BookID != 0 {
			if b, ok := s.books[ub.BookID]; ok {
				book := b
				entry.Book = &book
			}
		}
		res = append(res, entry)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *MemoryStore) ListUserBooks(userID int64, status *domain.ReadingStatus) ([]domain.UserBookWithBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectUserBooks(userID, status), nil
}

func (s *MemoryStore) ListUserBooksPage(userID int64, status *domain.ReadingStatus, page, pageSize int) ([]domain.UserBookWithBook, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	all := s.collectUserBooks(userID, status)
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []domain.UserBookWithBook{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) GetUserBookByBook(userID, bookID int64) (domain.UserBook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ub := range s.userBooks {
		if ub.UserID == userID && ub.BookID == bookID && bookID != 0 {
			return ub, true, nil
		}
	}
	return domain.UserBook{}, false, nil
}

func (s *MemoryStore) GetUserBookByExternalBook(userID int64, externalID string) (domain.UserBook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ub := range s.userBooks {
		if ub.UserID == userID && externalID != "" && ub.ExternalBookID == externalID {
			return ub, true, nil
		}
	}
	return domain.UserBook{}, false, nil
}

func (s *MemoryStore) UpdateUserBookStatus(id int64, status domain.ReadingStatus) (domain.UserBook, error) {
	if !domain.ValidStatus(status) {
		return domain.UserBook{}, fmt.Errorf("invalid status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ub, ok := s.userBooks[id]
	if !ok {
		return domain.UserBook{}, ErrNotFound
	}
	ub.Status = status
	ub.UpdatedAt = time.Now().UTC()
	s.userBooks[id] = ub
	return ub, nil
}

func (s *MemoryStore) DeleteUserBook(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userBooks[id]; !ok {
		return ErrNotFound
	}
	delete(s.userBooks, id)
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"soniclibrary/pkg/domain"
)

const migrateLockID int64 = 52175217

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{}, &GenreModel{}, &BookModel{}, &ReviewModel{}, &UserBookModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "SQLSTATE 23505")
}

// CreateUser inserts a new user and returns it with the assigned ID.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, ErrDuplicate
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UpdateUser persists changed user fields.
func (s *GormStore) UpdateUser(u domain.User) error {
	model := userToModel(u)
	res := s.db.Model(&UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
		"name":            model.Name,
		"email":           model.Email,
		"password_hash":   model.PasswordHash,
		"is_active":       model.IsActive,
		"profile_picture": model.ProfilePicture,
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateBook inserts a book, resolving or creating each named genre. Reusing
// an existing genre name never creates a duplicate genre row.
func (s *GormStore) CreateBook(b domain.Book) (domain.Book, error) {
	model := bookToModel(b)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		genres := make([]GenreModel, 0, len(b.Genres))
		for _, name := range b.Genres {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			var g GenreModel
			if err := tx.Where("name = ?", name).FirstOrCreate(&g, GenreModel{Name: name}).Error; err != nil {
				return fmt.Errorf("resolve genre %q: %w", name, err)
			}
			genres = append(genres, g)
		}
		model.Genres = genres
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Book{}, ErrDuplicate
		}
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

// GetBook retrieves a book with its genres.
func (s *GormStore) GetBook(id int64) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Preload("Genres").First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// GetBookByExternalID returns the local row materialized for an external
// volume, when one exists.
func (s *GormStore) GetBookByExternalID(externalID string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Preload("Genres").Where("external_id = ?", externalID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// GetBookByTitleAuthor finds a catalog row by exact title and author,
// case-insensitively.
func (s *GormStore) GetBookByTitleAuthor(title, author string) (domain.Book, bool, error) {
	var model BookModel
	err := s.db.Preload("Genres").
		Where("LOWER(title) = ? AND LOWER(author) = ?", strings.ToLower(title), strings.ToLower(author)).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) filterQuery(search, genre string) *gorm.DB {
	tx := s.db.Model(&BookModel{})
	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", pattern, pattern)
	}
	if genre != "" {
		tx = tx.Joins("JOIN book_genres bg ON bg.book_id = books.id").
			Joins("JOIN genres g ON g.id = bg.genre_id").
			Where("g.name = ?", genre)
	}
	return tx
}

// FilterBooks returns books matching a case-insensitive title/author substring
// and an exact genre name.
func (s *GormStore) FilterBooks(search, genre string) ([]domain.Book, error) {
	var models []BookModel
	if err := s.filterQuery(search, genre).Preload("Genres").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return booksFromModels(models), nil
}

// FilterBooksPage is the paginated variant of FilterBooks. It returns the page
// of books plus the total match count.
func (s *GormStore) FilterBooksPage(search, genre string, page, pageSize int) ([]domain.Book, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	var total int64
	if err := s.filterQuery(search, genre).Distinct("books.id").Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := s.filterQuery(search, genre).Preload("Genres").
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return booksFromModels(models), total, nil
}

// PopularBooks returns books ordered by review count.
func (s *GormStore) PopularBooks(limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = 10
	}
	var ids []int64
	if err := s.db.Table("books").
		Select("books.id").
		Joins("LEFT JOIN reviews ON reviews.book_id = books.id").
		Group("books.id").
		Order("COUNT(reviews.id) DESC, books.id ASC").
		Limit(limit).
		Scan(&ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Book{}, nil
	}
	var models []BookModel
	if err := s.db.Preload("Genres").Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]BookModel, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	ordered := make([]domain.Book, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, bookFromModel(m))
		}
	}
	return ordered, nil
}

// CreateReview inserts a review after verifying the range and target rules,
// mirroring the DB check constraints.
func (s *GormStore) CreateReview(r domain.Review) (domain.Review, error) {
	if r.Rate < 1 || r.Rate > 5 {
		return domain.Review{}, ErrRateRange
	}
	if err := ValidateReviewTarget(r.BookID, r.ExternalBookID); err != nil {
		return domain.Review{}, err
	}
	model := reviewToModel(r)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Review{}, err
	}
	return reviewFromModel(model), nil
}

// GetReview returns one review by ID.
func (s *GormStore) GetReview(id int64) (domain.Review, bool, error) {
	var model ReviewModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

type reviewUserRow struct {
	ReviewModel
	UserName           string
	UserProfilePicture string
}

func (s *GormStore) listReviewsJoined(cond string, arg any) ([]domain.ReviewWithUser, error) {
	var rows []reviewUserRow
	if err := s.db.Table("reviews").
		Select("reviews.*, users.name AS user_name, users.profile_picture AS user_profile_picture").
		Joins("JOIN users ON users.id = reviews.user_id").
		Where(cond, arg).
		Order("reviews.created_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ReviewWithUser, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.ReviewWithUser{
			Review:             reviewFromModel(row.ReviewModel),
			UserName:           row.UserName,
			UserProfilePicture: row.UserProfilePicture,
		})
	}
	return res, nil
}

// ListReviewsByBook returns a book's reviews joined with reviewer name and
// picture.
func (s *GormStore) ListReviewsByBook(bookID int64) ([]domain.ReviewWithUser, error) {
	return s.listReviewsJoined("reviews.book_id = ?", bookID)
}

// ListReviewsByExternalBook returns reviews attached to an external volume id.
func (s *GormStore) ListReviewsByExternalBook(externalID string) ([]domain.ReviewWithUser, error) {
	return s.listReviewsJoined("reviews.external_book_id = ?", externalID)
}

// ListReviewsByUser returns all reviews written by a user.
func (s *GormStore) ListReviewsByUser(userID int64) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

// UpdateReview persists content and rate changes.
func (s *GormStore) UpdateReview(r domain.Review) error {
	if r.Rate < 1 || r.Rate > 5 {
		return ErrRateRange
	}
	res := s.db.Model(&ReviewModel{}).Where("id = ?", r.ID).Updates(map[string]any{
		"content":    r.Content,
		"rate":       r.Rate,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReview removes a review.
func (s *GormStore) DeleteReview(id int64) error {
	res := s.db.Delete(&ReviewModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUserBook inserts a library entry. A second entry for the same
// (user, book) pair fails with ErrDuplicate.
func (s *GormStore) CreateUserBook(ub domain.UserBook) (domain.UserBook, error) {
	if err := ValidateReviewTarget(ub.BookID, ub.ExternalBookID); err != nil {
		return domain.UserBook{}, err
	}
	if ub.Status == "" {
		ub.Status = domain.StatusToRead
	}
	if !domain.ValidStatus(ub.Status) {
		return domain.UserBook{}, fmt.Errorf("invalid status %q", ub.Status)
	}
	model := userBookToModel(ub)
	if err := s.db.Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.UserBook{}, ErrDuplicate
		}
		return domain.UserBook{}, err
	}
	return userBookFromModel(model), nil
}

// GetUserBook returns one library entry by ID.
func (s *GormStore) GetUserBook(id int64) (domain.UserBook, bool, error) {
	var model UserBookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserBook{}, false, nil
		}
		return domain.UserBook{}, false, err
	}
	return userBookFromModel(model), true, nil
}

func (s *GormStore) userBooksQuery(userID int64, status *domain.ReadingStatus) *gorm.DB {
	tx := s.db.Model(&UserBookModel{}).Where("user_id = ?", userID)
	if status != nil {
		tx = tx.Where("status = ?", string(*status))
	}
	return tx
}

func (s *GormStore) attachBooks(models []UserBookModel) ([]domain.UserBookWithBook, error) {
	ids := make([]int64, 0, len(models))
	for _, m := range models {
		if m.BookID != nil {
			ids = append(ids, *m.BookID)
		}
	}
	books := make(map[int64]domain.Book, len(ids))
	if len(ids) > 0 {
		var bookModels []BookModel
		if err := s.db.Preload("Genres").Where("id IN ?", ids).Find(&bookModels).Error; err != nil {
			return nil, err
		}
		for _, bm := range bookModels {
			books[bm.ID] = bookFromModel(bm)
		}
	}
	res := make([]domain.UserBookWithBook, 0, len(models))
	for _, m := range models {
		entry := domain.UserBookWithBook{UserBook: userBookFromModel(m)}
		if m.BookID != nil {
			if b, ok := books[*m.BookID]; ok {
				book := b
				entry.Book = &book
			}
		}
		res = append(res, entry)
	}
	return res, nil
}

// ListUserBooks returns a user's library, optionally filtered by status.
func (s *GormStore) ListUserBooks(userID int64, status *domain.ReadingStatus) ([]domain.UserBookWithBook, error) {
	var models []UserBookModel
	if err := s.userBooksQuery(userID, status).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return s.attachBooks(models)
}

// ListUserBooksPage is the paginated variant of ListUserBooks.
func (s *GormStore) ListUserBooksPage(userID int64, status *domain.ReadingStatus, page, pageSize int) ([]domain.UserBookWithBook, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	var total int64
	if err := s.userBooksQuery(userID, status).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []UserBookModel
	if err := s.userBooksQuery(userID, status).
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	items, err := s.attachBooks(models)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetUserBookByBook returns the entry for a (user, local book) pair.
func (s *GormStore) GetUserBookByBook(userID, bookID int64) (domain.UserBook, bool, error) {
	var model UserBookModel
	if err := s.db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserBook{}, false, nil
		}
		return domain.UserBook{}, false, err
	}
	return userBookFromModel(model), true, nil
}

// GetUserBookByExternalBook returns the entry for a (user, external id) pair.
func (s *GormStore) GetUserBookByExternalBook(userID int64, externalID string) (domain.UserBook, bool, error) {
	var model UserBookModel
	if err := s.db.Where("user_id = ? AND external_book_id = ?", userID, externalID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserBook{}, false, nil
		}
		return domain.UserBook{}, false, err
	}
	return userBookFromModel(model), true, nil
}

// UpdateUserBookStatus changes the reading status of a library entry.
func (s *GormStore) UpdateUserBookStatus(id int64, status domain.ReadingStatus) (domain.UserBook, error) {
	if !domain.ValidStatus(status) {
		return domain.UserBook{}, fmt.Errorf("invalid status %q", status)
	}
	res := s.db.Model(&UserBookModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.UserBook{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.UserBook{}, ErrNotFound
	}
	updated, _, err := s.GetUserBook(id)
	return updated, err
}

// DeleteUserBook removes a library entry.
func (s *GormStore) DeleteUserBook(id int64) error {
	res := s.db.Delete(&UserBookModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		IsActive:       u.IsActive,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:             m.ID,
		Name:           m.Name,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		IsActive:       m.IsActive,
		ProfilePicture: m.ProfilePicture,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	model := BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		PageCount:     b.PageCount,
		PublishedDate: b.PublishedDate,
		Publisher:     b.Publisher,
		ImageURL:      b.ImageURL,
		Language:      b.Language,
	}
	if strings.TrimSpace(b.ExternalID) != "" {
		value := strings.TrimSpace(b.ExternalID)
		model.ExternalID = &value
	}
	if strings.TrimSpace(b.ISBN) != "" {
		value := strings.TrimSpace(b.ISBN)
		model.ISBN = &value
	}
	if len(b.SourceMetadata) > 0 {
		model.SourceMetadata = datatypes.JSON(b.SourceMetadata)
	}
	return model
}

func bookFromModel(m BookModel) domain.Book {
	book := domain.Book{
		ID:            m.ID,
		Title:         m.Title,
		Author:        m.Author,
		Description:   m.Description,
		PageCount:     m.PageCount,
		PublishedDate: m.PublishedDate,
		Publisher:     m.Publisher,
		ImageURL:      m.ImageURL,
		Language:      m.Language,
		Genres:        make([]string, 0, len(m.Genres)),
	}
	if m.ExternalID != nil {
		book.ExternalID = *m.ExternalID
	}
	if m.ISBN != nil {
		book.ISBN = *m.ISBN
	}
	if len(m.SourceMetadata) > 0 {
		book.SourceMetadata = json.RawMessage(m.SourceMetadata)
	}
	for _, g := range m.Genres {
		book.Genres = append(book.Genres, g.Name)
	}
	return book
}

func booksFromModels(models []BookModel) []domain.Book {
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res
}

func reviewToModel(r domain.Review) ReviewModel {
	model := ReviewModel{
		ID:        r.ID,
		UserID:    r.UserID,
		Content:   r.Content,
		Rate:      r.Rate,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.BookID != 0 {
		value := r.BookID
		model.BookID = &value
	}
	if strings.TrimSpace(r.ExternalBookID) != "" {
		value := strings.TrimSpace(r.ExternalBookID)
		model.ExternalBookID = &value
	}
	return model
}

func reviewFromModel(m ReviewModel) domain.Review {
	review := domain.Review{
		ID:        m.ID,
		UserID:    m.UserID,
		Content:   m.Content,
		Rate:      m.Rate,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.BookID != nil {
		review.BookID = *m.BookID
	}
	if m.ExternalBookID != nil {
		review.ExternalBookID = *m.ExternalBookID
	}
	return review
}

func userBookToModel(ub domain.UserBook) UserBookModel {
	model := UserBookModel{
		ID:        ub.ID,
		UserID:    ub.UserID,
		Status:    string(ub.Status),
		CreatedAt: ub.CreatedAt,
		UpdatedAt: ub.UpdatedAt,
	}
	if ub.BookID != 0 {
		value := ub.BookID
		model.BookID = &value
	}
	if strings.TrimSpace(ub.ExternalBookID) != "" {
		value := strings.TrimSpace(ub.ExternalBookID)
		model.ExternalBookID = &value
	}
	return model
}

func userBookFromModel(m UserBookModel) domain.UserBook {
	ub := domain.UserBook{
		ID:        m.ID,
		UserID:    m.UserID,
		Status:    domain.ReadingStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.BookID != nil {
		ub.BookID = *m.BookID
	}
	if m.ExternalBookID != nil {
		ub.ExternalBookID = *m.ExternalBookID
	}
	return ub
}

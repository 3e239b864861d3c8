package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"soniclibrary/pkg/domain"
	"soniclibrary/pkg/store"
)

const recommendCachePrefix = "recommend:"

// CreateReview records a rating and write-up for a local or external book.
func (a *App) CreateReview(user domain.User, review domain.Review) (domain.Review, error) {
	review.UserID = user.ID
	review.Content = strings.TrimSpace(review.Content)
	review.ExternalBookID = strings.TrimSpace(review.ExternalBookID)
	if err := store.ValidateReviewTarget(review.BookID, review.ExternalBookID); err != nil {
		return domain.Review{}, Validation(err.Error())
	}
	if review.Content == "" {
		return domain.Review{}, Validation("review content required")
	}
	if review.Rate < 1 || review.Rate > 5 {
		return domain.Review{}, Validation(store.ErrRateRange.Error())
	}
	if review.BookID != 0 {
		if _, ok, err := a.store.GetBook(review.BookID); err != nil {
			return domain.Review{}, fmt.Errorf("fetch book: %w", err)
		} else if !ok {
			return domain.Review{}, NotFound("book not found")
		}
	}
	created, err := a.store.CreateReview(review)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRateRange), errors.Is(err, store.ErrInvalidTarget):
			return domain.Review{}, Validation(err.Error())
		}
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	a.invalidateReviewCaches(user.ID)
	audit("review.create", user.ID, "review_id", created.ID)
	return created, nil
}

// GetReview fetches a single review. Any authenticated user may read a
// review; ownership only gates mutations.
func (a *App) GetReview(id int64) (domain.Review, error) {
	review, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.Review{}, NotFound("review not found")
	}
	return review, nil
}

// ListBookReviews returns all reviews of a local book with reviewer names.
func (a *App) ListBookReviews(bookID int64) ([]domain.ReviewWithUser, error) {
	if _, ok, err := a.store.GetBook(bookID); err != nil {
		return nil, fmt.Errorf("fetch book: %w", err)
	} else if !ok {
		return nil, NotFound("book not found")
	}
	reviews, err := a.store.ListReviewsByBook(bookID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// ListExternalBookReviews returns all reviews of an external volume.
func (a *App) ListExternalBookReviews(externalID string) ([]domain.ReviewWithUser, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, Validation("external book id required")
	}
	reviews, err := a.store.ListReviewsByExternalBook(externalID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// ListMyReviews returns the caller's own reviews.
func (a *App) ListMyReviews(user domain.User) ([]domain.Review, error) {
	reviews, err := a.store.ListReviewsByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// UpdateReview changes the content or rate of the caller's review.
func (a *App) UpdateReview(user domain.User, id int64, content *string, rate *int) (domain.Review, error) {
	review, err := a.ownedReview(user, id)
	if err != nil {
		return domain.Review{}, err
	}
	if content != nil {
		trimmed := strings.TrimSpace(*content)
		if trimmed == "" {
			return domain.Review{}, Validation("review content required")
		}
		review.Content = trimmed
	}
	if rate != nil {
		if *rate < 1 || *rate > 5 {
			return domain.Review{}, Validation(store.ErrRateRange.Error())
		}
		review.Rate = *rate
	}
	if err := a.store.UpdateReview(review); err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	a.invalidateReviewCaches(user.ID)
	audit("review.update", user.ID, "review_id", id)
	return review, nil
}

// DeleteReview removes the caller's review.
func (a *App) DeleteReview(user domain.User, id int64) error {
	if _, err := a.ownedReview(user, id); err != nil {
		return err
	}
	if err := a.store.DeleteReview(id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	a.invalidateReviewCaches(user.ID)
	audit("review.delete", user.ID, "review_id", id)
	return nil
}

// ownedReview is the single ownership check for review mutations: the row
// must exist and belong to the caller.
func (a *App) ownedReview(user domain.User, id int64) (domain.Review, error) {
	review, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.Review{}, NotFound("review not found")
	}
	if review.UserID != user.ID {
		return domain.Review{}, Forbidden("review belongs to another user")
	}
	return review, nil
}

// invalidateReviewCaches drops the popularity ranking and the author's cached
// recommendations, which both depend on review data.
func (a *App) invalidateReviewCaches(userID int64) {
	a.cache.Delete(popularCacheKey)
	a.cache.DeletePrefix(recommendCachePrefix + strconv.FormatInt(userID, 10) + ":")
}

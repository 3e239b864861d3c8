package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"soniclibrary/pkg/domain"
)

const (
	recommendTimeout = 10 * time.Second
	candidateTarget  = 25
	recommendCount   = 5
	likedRateFloor   = 3
)

// candidateSeeds are the search terms used to build the recommendation
// candidate pool.
// TODO: seed the search with the user's own top genres instead of fixed terms.
var candidateSeeds = []string{
	"bestselling fiction",
	"science fiction",
	"fantasy",
	"mystery thriller",
	"classic literature",
}

const recommendSystemPrompt = "You are a book recommendation engine."

// Recommend asks the language model to pick five candidate volumes matching
// the user's taste. Results are cached per user and invalidated when the
// user's reviews or library change.
func (a *App) Recommend(ctx context.Context, user domain.User) ([]domain.Recommendation, error) {
	all, err := a.store.ListReviewsByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	// Only books the user actually liked say anything about taste.
	reviews := all[:0:0]
	for _, review := range all {
		if review.Rate >= likedRateFloor {
			reviews = append(reviews, review)
		}
	}
	if len(reviews) == 0 {
		return nil, NotFound("no reviews to base recommendations on")
	}
	if a.generator == nil {
		return nil, Upstream("recommendation model not configured", nil)
	}

	cacheKey := recommendCachePrefix + strconv.FormatInt(user.ID, 10) + ":latest"
	if raw, ok := a.cache.Get(cacheKey); ok {
		var cached []domain.Recommendation
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
	}

	library, err := a.store.ListUserBooks(user.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	candidates := a.gatherCandidates(ctx, library)

	ctx, cancel := context.WithTimeout(ctx, recommendTimeout)
	defer cancel()
	prompt := buildRecommendPrompt(reviews, library, candidates)
	completion, err := a.generator.GenerateText(ctx, recommendSystemPrompt, prompt)
	if err != nil {
		return nil, Upstream("recommendation model call failed", err)
	}

	recommendations := ParseRecommendations(completion)
	if raw, err := json.Marshal(recommendations); err == nil {
		a.cache.Set(cacheKey, string(raw), a.recommendCacheTTL)
	}
	audit("recommend.generate", user.ID, "count", len(recommendations))
	return recommendations, nil
}

// gatherCandidates searches the external catalog for possible picks. Search
// failures degrade to a smaller (possibly empty) pool rather than failing the
// request.
func (a *App) gatherCandidates(ctx context.Context, library []domain.UserBookWithBook) []domain.ExternalBook {
	if a.books == nil {
		return nil
	}
	owned := make(map[string]bool, len(library))
	for _, entry := range library {
		if entry.Book != nil && entry.Book.ExternalID != "" {
			owned[entry.Book.ExternalID] = true
		}
		if entry.ExternalBookID != "" {
			owned[entry.ExternalBookID] = true
		}
	}

	seen := make(map[string]bool)
	candidates := make([]domain.ExternalBook, 0, candidateTarget)
	for _, seed := range candidateSeeds {
		if len(candidates) >= candidateTarget {
			break
		}
		found, _, err := a.books.Search(ctx, seed, 1, 10)
		if err != nil {
			slog.Warn("candidate search failed", "seed", seed, "error", err)
			continue
		}
		for _, book := range found {
			if len(candidates) >= candidateTarget {
				break
			}
			if book.ExternalID == "" || seen[book.ExternalID] || owned[book.ExternalID] {
				continue
			}
			seen[book.ExternalID] = true
			candidates = append(candidates, book)
		}
	}
	return candidates
}

func buildRecommendPrompt(reviews []domain.Review, library []domain.UserBookWithBook, candidates []domain.ExternalBook) string {
	var b strings.Builder
	b.WriteString("Here is a list of books the user has reviewed and rated:\n\n")
	titles := make(map[int64]string, len(library))
	for _, entry := range library {
		if entry.Book != nil {
			titles[entry.Book.ID] = fmt.Sprintf("%s by %s", entry.Book.Title, entry.Book.Author)
		}
	}
	for _, review := range reviews {
		label := titles[review.BookID]
		if label == "" && review.ExternalBookID != "" {
			label = "external volume " + review.ExternalBookID
		}
		if label == "" {
			label = fmt.Sprintf("book %d", review.BookID)
		}
		fmt.Fprintf(&b, "- %s: %s (Rating: %d/5)\n", label, review.Content, review.Rate)
	}

	b.WriteString("\nHere is a list of candidate books:\n\n")
	for _, c := range candidates {
		description := c.Description
		if len(description) > 300 {
			description = description[:300]
		}
		fmt.Fprintf(&b, "- ID %s: %s by %s - %s\n", c.ExternalID, c.Title, strings.Join(c.Authors, ", "), description)
	}

	fmt.Fprintf(&b, `
Based on the user's preferences, recommend exactly %d books from the
candidates. Be very straightforward. For each pick, answer in exactly this
format with no extra text:

ID: <candidate id>
Title: <title>
Authors: <authors>
Description: <one sentence>
Why recommended: <one sentence>
`, recommendCount)
	return b.String()
}

// ParseRecommendations extracts picks from the model's fixed-format reply.
// Blocks missing an ID or title are skipped; a block only opens on an ID line,
// so stray fields from a malformed block cannot bleed into the previous pick.
func ParseRecommendations(text string) []domain.Recommendation {
	var out []domain.Recommendation
	var current domain.Recommendation

	flush := func() {
		if current.ExternalID != "" && current.Title != "" {
			out = append(out, current)
		}
		current = domain.Recommendation{}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "ID:") {
			flush()
			current.ExternalID = strings.TrimSpace(strings.TrimPrefix(line, "ID:"))
			continue
		}
		if current.ExternalID == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "Title:"):
			current.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Authors:"):
			current.Authors = strings.TrimSpace(strings.TrimPrefix(line, "Authors:"))
		case strings.HasPrefix(line, "Description:"):
			current.Description = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "Why recommended:"):
			current.Reason = strings.TrimSpace(strings.TrimPrefix(line, "Why recommended:"))
		}
	}
	flush()

	if len(out) > recommendCount {
		out = out[:recommendCount]
	}
	return out
}

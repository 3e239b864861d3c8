package app

import (
	"context"
	"fmt"
	"testing"

	"soniclibrary/pkg/domain"
)

func TestCreateBookSlashGenres(t *testing.T) {
	env := newTestEnv(t)
	book, err := env.app.CreateBook(domain.Book{
		Title:  "Mistborn",
		Author: "Brandon Sanderson",
		Genres: []string{"Fantasy/Adventure", "Fantasy"},
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if len(book.Genres) != 2 || book.Genres[0] != "Fantasy" || book.Genres[1] != "Adventure" {
		t.Fatalf("unexpected genres %v", book.Genres)
	}
}

func TestCreateBookValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.app.CreateBook(domain.Book{Author: "X"}); err == nil {
		t.Fatalf("expected title validation error")
	}
	if _, err := env.app.CreateBook(domain.Book{Title: "X"}); err == nil {
		t.Fatalf("expected author validation error")
	}
	_, err := env.app.CreateBook(domain.Book{Title: "X", Author: "Y", ISBN: "123"})
	wantKind(t, err, KindValidation)
}

func TestCreateBookNormalizesISBN(t *testing.T) {
	env := newTestEnv(t)
	book, err := env.app.CreateBook(domain.Book{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0-441-01359-3"})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if book.ISBN != "9780441013593" {
		t.Fatalf("unexpected isbn %q", book.ISBN)
	}
}

func TestFilterBooksPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 15; i++ {
		if _, err := env.app.CreateBook(domain.Book{
			Title:  fmt.Sprintf("Book %02d", i),
			Author: "Author",
		}); err != nil {
			t.Fatalf("seed book %d: %v", i, err)
		}
	}

	books, page, err := env.app.FilterBooks("", "", 1, 5)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(books) != 5 || page.TotalPages != 3 || !page.HasNext || page.HasPrevious {
		t.Fatalf("unexpected page 1: len=%d meta=%+v", len(books), page)
	}

	_, page, err = env.app.FilterBooks("", "", 3, 5)
	if err != nil {
		t.Fatalf("filter page 3: %v", err)
	}
	if page.HasNext || !page.HasPrevious || page.StartIndex != 11 || page.EndIndex != 15 {
		t.Fatalf("unexpected page 3 meta %+v", page)
	}
}

func TestPopularBooksCachedUntilReviewMutation(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUpActive(t, "Ana", "ana@example.com")
	a, _ := env.app.CreateBook(domain.Book{Title: "A", Author: "X"})
	b, _ := env.app.CreateBook(domain.Book{Title: "B", Author: "Y"})

	if _, err := env.app.CreateReview(user, domain.Review{BookID: a.ID, Content: "good", Rate: 4}); err != nil {
		t.Fatalf("review: %v", err)
	}
	popular, err := env.app.PopularBooks()
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	if len(popular) == 0 || popular[0].ID != a.ID {
		t.Fatalf("expected book A most popular, got %+v", popular)
	}

	// Two reviews for B; the invalidation hook must drop the cached ranking.
	if _, err := env.app.CreateReview(user, domain.Review{BookID: b.ID, Content: "great", Rate: 5}); err != nil {
		t.Fatalf("review: %v", err)
	}
	other := env.signUpActive(t, "Bea", "bea@example.com")
	if _, err := env.app.CreateReview(other, domain.Review{BookID: b.ID, Content: "agreed", Rate: 5}); err != nil {
		t.Fatalf("review: %v", err)
	}
	popular, err = env.app.PopularBooks()
	if err != nil {
		t.Fatalf("popular after mutation: %v", err)
	}
	if popular[0].ID != b.ID {
		t.Fatalf("expected ranking refreshed, got %+v", popular)
	}
}

func TestSearchExternalCachesPerQuery(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.volumes["vol-1"] = domain.ExternalBook{ExternalID: "vol-1", Title: "Dune"}

	results, page, err := env.app.SearchExternal(context.Background(), "dune", 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || page.TotalCount != 1 {
		t.Fatalf("unexpected results %+v meta %+v", results, page)
	}
	if _, _, err := env.app.SearchExternal(context.Background(), "dune", 1, 10); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if env.catalog.searchCalls != 1 {
		t.Fatalf("expected cached second search, got %d upstream calls", env.catalog.searchCalls)
	}
}

func TestSearchExternalUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.fail = true
	_, _, err := env.app.SearchExternal(context.Background(), "dune", 1, 10)
	wantKind(t, err, KindUpstream)
}

func TestGetExternalBook(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.volumes["vol-1"] = domain.ExternalBook{ExternalID: "vol-1", Title: "Dune"}
	book, err := env.app.GetExternalBook(context.Background(), "vol-1")
	if err != nil {
		t.Fatalf("get external: %v", err)
	}
	if book.Title != "Dune" {
		t.Fatalf("unexpected book %+v", book)
	}
	if _, err := env.app.GetExternalBook(context.Background(), "vol-1"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if env.catalog.getCalls != 1 {
		t.Fatalf("expected cached second lookup, got %d calls", env.catalog.getCalls)
	}
}

func TestCreateBookDuplicateTitleAuthor(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.app.CreateBook(domain.Book{Title: "Dune", Author: "Frank Herbert"}); err != nil {
		t.Fatalf("create book: %v", err)
	}
	_, err := env.app.CreateBook(domain.Book{Title: "dune", Author: "FRANK HERBERT"})
	wantKind(t, err, KindConflict)
}

package app

import (
	"strconv"
	"testing"

	"soniclibrary/pkg/domain"
)

func (e *testEnv) seedLibraryBook(t *testing.T, user domain.User, b domain.Book) domain.Book {
	t.Helper()
	book, err := e.app.CreateBook(b)
	if err != nil {
		t.Fatalf("seed book %q: %v", b.Title, err)
	}
	if _, err := e.app.AddBookToLibrary(user, book.ID, ""); err != nil {
		t.Fatalf("seed library %q: %v", b.Title, err)
	}
	return book
}

func TestBuildGraphHeuristics(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUpActive(t, "Ana", "ana@example.com")

	dune := env.seedLibraryBook(t, user, domain.Book{
		Title: "Dune", Author: "Frank Herbert", Genres: []string{"Science Fiction"},
	})
	messiah := env.seedLibraryBook(t, user, domain.Book{
		Title: "Dune Messiah", Author: "Frank Herbert", Genres: []string{"Science Fiction"},
	})
	hyperion := env.seedLibraryBook(t, user, domain.Book{
		Title: "Hyperion", Author: "Dan Simmons", Genres: []string{"Science Fiction"},
	})
	cookbook := env.seedLibraryBook(t, user, domain.Book{
		Title: "Pasta at Home", Author: "Maria Rossi", Genres: []string{"Cooking"},
	})

	graph, err := env.app.BuildGraph(user)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if len(graph.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(graph.Nodes))
	}

	edges := make(map[[2]int64]domain.GraphEdge)
	for _, e := range graph.Edges {
		edges[edgeKey(t, e)] = e
	}

	// Same author outranks the shared genre and title overlap.
	sameAuthor, ok := edges[pair(dune.ID, messiah.ID)]
	if !ok || sameAuthor.Kind != "same_author" || sameAuthor.Weight != 1.0 {
		t.Fatalf("expected same_author edge, got %+v", sameAuthor)
	}
	// Different authors sharing a meaningful genre.
	genre, ok := edges[pair(dune.ID, hyperion.ID)]
	if !ok || genre.Kind != "shared_genre" || genre.Weight != 0.7 {
		t.Fatalf("expected shared_genre edge, got %+v", genre)
	}
	// The cookbook relates to nothing.
	for key := range edges {
		if key[0] == cookbook.ID || key[1] == cookbook.ID {
			t.Fatalf("unexpected edge touching unrelated book: %v", key)
		}
	}
	// One edge per pair.
	if len(graph.Edges) != len(edges) {
		t.Fatalf("expected unique pairs, got %d edges", len(graph.Edges))
	}
}

func TestBuildGraphSeriesAndStyle(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUpActive(t, "Ana", "ana@example.com")

	first := env.seedLibraryBook(t, user, domain.Book{
		Title: "Mistborn: The Final Empire", Author: "A", Genres: []string{"Fiction"},
	})
	second := env.seedLibraryBook(t, user, domain.Book{
		Title: "Mistborn: The Well of Ascension", Author: "B", Genres: []string{"Fiction"},
	})
	third := env.seedLibraryBook(t, user, domain.Book{
		Title:       "Stormfront",
		Author:      "C",
		Genres:      []string{"Fiction"},
		Description: "wizard detective chicago underworld supernatural cases",
	})
	fourth := env.seedLibraryBook(t, user, domain.Book{
		Title:       "Night Watch",
		Author:      "D",
		Genres:      []string{"Fiction"},
		Description: "wizard detective moscow underworld supernatural balance",
	})

	graph, err := env.app.BuildGraph(user)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	edges := make(map[[2]int64]domain.GraphEdge)
	for _, e := range graph.Edges {
		edges[edgeKey(t, e)] = e
	}

	// "Fiction" alone is too generic to relate books; title overlap wins.
	series, ok := edges[pair(first.ID, second.ID)]
	if !ok || series.Kind != "same_series" || series.Weight != 0.5 {
		t.Fatalf("expected same_series edge, got %+v", series)
	}
	style, ok := edges[pair(third.ID, fourth.ID)]
	if !ok || style.Kind != "similar_style" || style.Weight != 0.3 {
		t.Fatalf("expected similar_style edge, got %+v", style)
	}
}

func TestBuildGraphNodeRatings(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUpActive(t, "Ana", "ana@example.com")
	book := env.seedLibraryBook(t, user, domain.Book{Title: "Dune", Author: "Frank Herbert"})

	other := env.signUpActive(t, "Bea", "bea@example.com")
	if _, err := env.app.CreateReview(user, domain.Review{BookID: book.ID, Content: "good", Rate: 4}); err != nil {
		t.Fatalf("review: %v", err)
	}
	_ = other

	graph, err := env.app.BuildGraph(user)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if len(graph.Nodes) != 1 || graph.Nodes[0].Rating != 4 {
		t.Fatalf("expected rating 4 on node, got %+v", graph.Nodes)
	}
	if graph.Nodes[0].Label != "Dune" || graph.Nodes[0].Author != "Frank Herbert" {
		t.Fatalf("unexpected node %+v", graph.Nodes[0])
	}
}

func pair(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func edgeKey(t *testing.T, e domain.GraphEdge) [2]int64 {
	t.Helper()
	src, err := strconv.ParseInt(e.Source, 10, 64)
	if err != nil {
		t.Fatalf("bad source id %q", e.Source)
	}
	dst, err := strconv.ParseInt(e.Target, 10, 64)
	if err != nil {
		t.Fatalf("bad target id %q", e.Target)
	}
	return pair(src, dst)
}

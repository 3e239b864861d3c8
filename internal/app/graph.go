package app

import (
	"fmt"
	"strconv"
	"strings"

	"soniclibrary/pkg/domain"
)

// Edge weights, strongest first. Only the strongest detected relationship is
// kept per pair.
const (
	weightSameAuthor  = 1.0
	weightSharedGenre = 0.7
	weightSameSeries  = 0.5
	weightStyle       = 0.3
)

// genericGenres are too broad to signal a meaningful relationship.
var genericGenres = map[string]bool{
	"fiction":    true,
	"nonfiction": true,
	"general":    true,
	"books":      true,
	"literature": true,
}

// titleStopwords are ignored when comparing title words for series detection.
var titleStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true,
	"in": true, "to": true, "for": true, "on": true, "book": true,
	"vol": true, "volume": true, "part": true,
}

// BuildGraph computes the similarity graph over the user's library. Nodes are
// the user's books; each pair gets at most one edge, labeled with the
// strongest relationship found.
func (a *App) BuildGraph(user domain.User) (domain.Graph, error) {
	library, err := a.store.ListUserBooks(user.ID, nil)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("list library: %w", err)
	}
	reviews, err := a.store.ListReviewsByUser(user.ID)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("list reviews: %w", err)
	}

	ratings := make(map[int64][]int)
	for _, review := range reviews {
		if review.BookID != 0 {
			ratings[review.BookID] = append(ratings[review.BookID], review.Rate)
		}
	}

	books := make([]domain.Book, 0, len(library))
	for _, entry := range library {
		if entry.Book != nil {
			books = append(books, *entry.Book)
		}
	}

	graph := domain.Graph{
		Nodes: make([]domain.GraphNode, 0, len(books)),
		Edges: []domain.GraphEdge{},
	}
	for _, book := range books {
		node := domain.GraphNode{
			ID:     strconv.FormatInt(book.ID, 10),
			Label:  book.Title,
			Author: book.Author,
		}
		if len(book.Genres) > 0 {
			node.Genre = book.Genres[0]
		}
		if rates := ratings[book.ID]; len(rates) > 0 {
			sum := 0
			for _, r := range rates {
				sum += r
			}
			node.Rating = float64(sum) / float64(len(rates))
		}
		graph.Nodes = append(graph.Nodes, node)
	}

	for i := 0; i < len(books); i++ {
		for j := i + 1; j < len(books); j++ {
			kind, weight := relate(books[i], books[j])
			if kind == "" {
				continue
			}
			graph.Edges = append(graph.Edges, domain.GraphEdge{
				Source: strconv.FormatInt(books[i].ID, 10),
				Target: strconv.FormatInt(books[j].ID, 10),
				Kind:   kind,
				Weight: weight,
			})
		}
	}
	return graph, nil
}

// relate returns the strongest relationship between two books, checked in
// descending weight order.
func relate(a, b domain.Book) (string, float64) {
	if sameAuthor(a, b) {
		return "same_author", weightSameAuthor
	}
	if sharedGenre(a, b) {
		return "shared_genre", weightSharedGenre
	}
	if sharedTitleWord(a, b) {
		return "same_series", weightSameSeries
	}
	if similarStyle(a, b) {
		return "similar_style", weightStyle
	}
	return "", 0
}

func sameAuthor(a, b domain.Book) bool {
	x := strings.ToLower(strings.TrimSpace(a.Author))
	y := strings.ToLower(strings.TrimSpace(b.Author))
	return x != "" && x == y
}

func sharedGenre(a, b domain.Book) bool {
	seen := make(map[string]bool, len(a.Genres))
	for _, g := range a.Genres {
		name := strings.ToLower(strings.TrimSpace(g))
		if name != "" && !genericGenres[name] {
			seen[name] = true
		}
	}
	for _, g := range b.Genres {
		if seen[strings.ToLower(strings.TrimSpace(g))] {
			return true
		}
	}
	return false
}

// sharedTitleWord is a naive series detector: two titles sharing a
// significant word ("Dune", "Mistborn") are likely related volumes.
func sharedTitleWord(a, b domain.Book) bool {
	words := titleWords(a.Title)
	for word := range titleWords(b.Title) {
		if words[word] {
			return true
		}
	}
	return false
}

func titleWords(title string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.Trim(word, ".,:;!?()'\"")
		if len(word) > 3 && !titleStopwords[word] {
			out[word] = true
		}
	}
	return out
}

// similarStyle counts shared long keywords across descriptions.
func similarStyle(a, b domain.Book) bool {
	const needed = 3
	words := descriptionKeywords(a.Description)
	shared := 0
	for word := range descriptionKeywords(b.Description) {
		if words[word] {
			shared++
			if shared >= needed {
				return true
			}
		}
	}
	return false
}

func descriptionKeywords(description string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(description)) {
		word = strings.Trim(word, ".,:;!?()'\"")
		if len(word) > 4 {
			out[word] = true
		}
	}
	return out
}

package googlebooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const searchPayload = `{
  "totalItems": 2,
  "items": [
    {
      "id": "vol-1",
      "volumeInfo": {
        "title": "Dune",
        "authors": ["Frank Herbert"],
        "description": "<p>A <b>desert</b> planet.</p>",
        "pageCount": 412,
        "publishedDate": "1965",
        "publisher": "Chilton Books",
        "language": "en",
        "categories": ["Science Fiction"],
        "industryIdentifiers": [
          {"type": "ISBN_10", "identifier": "0441013597"},
          {"type": "ISBN_13", "identifier": "9780441013593"}
        ],
        "imageLinks": {"thumbnail": "http://img/dune.jpg"}
      }
    },
    {
      "id": "vol-2",
      "volumeInfo": {"title": "Dune Messiah", "authors": ["Frank Herbert"]}
    }
  ]
}`

func TestSearchMapsVolumes(t *testing.T) {
	var gotQuery, gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		gotStart = r.URL.Query().Get("startIndex")
		w.Write([]byte(searchPayload))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, "")
	books, total, err := client.Search(context.Background(), "dune", 2, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "dune" || gotStart != "10" {
		t.Fatalf("unexpected query params q=%q startIndex=%q", gotQuery, gotStart)
	}
	if total != 2 || len(books) != 2 {
		t.Fatalf("expected 2 results, got total=%d len=%d", total, len(books))
	}

	first := books[0]
	if first.ExternalID != "vol-1" || first.Title != "Dune" || len(first.Authors) != 1 || first.Authors[0] != "Frank Herbert" {
		t.Fatalf("unexpected mapping: %+v", first)
	}
	if first.Description != "A desert planet." {
		t.Fatalf("expected HTML stripped, got %q", first.Description)
	}
	if first.ISBN != "9780441013593" {
		t.Fatalf("expected ISBN_13 preferred, got %q", first.ISBN)
	}
	if first.Thumbnail != "http://img/dune.jpg" {
		t.Fatalf("unexpected image url %q", first.Thumbnail)
	}
}

func TestGetVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes/vol-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"id":"vol-1","volumeInfo":{"title":"Dune","authors":["Frank Herbert"]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, "")
	book, err := client.Get(context.Background(), "vol-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if book.ExternalID != "vol-1" || book.Title != "Dune" {
		t.Fatalf("unexpected volume %+v", book)
	}
}

func TestUpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, "")
	if _, _, err := client.Search(context.Background(), "dune", 1, 10); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

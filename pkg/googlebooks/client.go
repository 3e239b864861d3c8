// Package googlebooks looks up volumes on the Google Books API and maps them
// into catalog entries.
package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"soniclibrary/pkg/domain"
)

const defaultBaseURL = "https://www.googleapis.com/books/v1"

// Client queries the Google Books volumes API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a Client. baseURL may be empty to use the public API; the
// API key is optional and only raises quota limits.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type volumeResponse struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string               `json:"title"`
	Authors             []string             `json:"authors"`
	Description         string               `json:"description"`
	PageCount           int                  `json:"pageCount"`
	PublishedDate       string               `json:"publishedDate"`
	Publisher           string               `json:"publisher"`
	Language            string               `json:"language"`
	Categories          []string             `json:"categories"`
	IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
	ImageLinks          struct {
		Thumbnail      string `json:"thumbnail"`
		SmallThumbnail string `json:"smallThumbnail"`
	} `json:"imageLinks"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type searchResponse struct {
	TotalItems int64            `json:"totalItems"`
	Items      []volumeResponse `json:"items"`
}

// Search runs a paginated volume search. page is 1-based.
func (c *Client) Search(ctx context.Context, query string, page, pageSize int) ([]domain.ExternalBook, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 40 {
		pageSize = 10
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("startIndex", strconv.Itoa((page-1)*pageSize))
	params.Set("maxResults", strconv.Itoa(pageSize))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var payload searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/volumes?"+params.Encode(), &payload); err != nil {
		return nil, 0, err
	}

	books := make([]domain.ExternalBook, 0, len(payload.Items))
	for _, item := range payload.Items {
		books = append(books, mapVolume(item))
	}
	return books, payload.TotalItems, nil
}

// Get fetches a single volume by its Google Books id.
func (c *Client) Get(ctx context.Context, volumeID string) (domain.ExternalBook, error) {
	endpoint := c.baseURL + "/volumes/" + url.PathEscape(volumeID)
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}
	var payload volumeResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return domain.ExternalBook{}, err
	}
	return mapVolume(payload), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build google books request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google books request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("google books status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode google books response: %w", err)
	}
	return nil
}

func mapVolume(v volumeResponse) domain.ExternalBook {
	info := v.VolumeInfo
	book := domain.ExternalBook{
		ExternalID:    v.ID,
		Title:         info.Title,
		Authors:       info.Authors,
		Description:   stripHTML(info.Description),
		PageCount:     info.PageCount,
		PublishedDate: info.PublishedDate,
		Publisher:     info.Publisher,
		Language:      info.Language,
		Categories:    info.Categories,
		ISBN:          pickISBN(info.IndustryIdentifiers),
	}
	if info.ImageLinks.Thumbnail != "" {
		book.Thumbnail = info.ImageLinks.Thumbnail
	} else {
		book.Thumbnail = info.ImageLinks.SmallThumbnail
	}
	return book
}

// pickISBN prefers ISBN_13 over ISBN_10.
func pickISBN(ids []industryIdentifier) string {
	var isbn10 string
	for _, id := range ids {
		switch id.Type {
		case "ISBN_13":
			return id.Identifier
		case "ISBN_10":
			isbn10 = id.Identifier
		}
	}
	return isbn10
}

// stripHTML flattens the markup Google Books embeds in descriptions down to
// plain text.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(tokenizer.Text())
			b.WriteByte(' ')
		}
	}
}

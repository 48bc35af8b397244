package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to the external media catalog (a TMDB style discover API).
// Query parameters are treated as best effort only; callers must re-filter
// the returned items before trusting them.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type Query struct {
	ContentType string // 'movie' or 'tv'
	GenreIDs    []int
	ProviderIDs []int
	SortBy      string
	Page        int
	MinYear     int
	MaxYear     int
	MinRating   decimal.Decimal
}

// Item is the raw catalog record. Movies carry title/release_date while
// tv shows carry name/first_air_date, hence the doubled fields.
type Item struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Name         string          `json:"name"`
	PosterPath   string          `json:"poster_path"`
	VoteAverage  decimal.Decimal `json:"vote_average"`
	ReleaseDate  string          `json:"release_date"`
	FirstAirDate string          `json:"first_air_date"`
	GenreIDs     []int           `json:"genre_ids"`
}

func (i Item) DisplayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

func (i Item) Released() string {
	if i.ReleaseDate != "" {
		return i.ReleaseDate
	}
	return i.FirstAirDate
}

type Page struct {
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Results    []Item `json:"results"`
}

type Details struct {
	Item
	Overview string  `json:"overview"`
	Runtime  int     `json:"runtime"`
	Genres   []Genre `json:"genres"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Discover fetches one page of the filtered catalog listing.
func (c *Client) Discover(ctx context.Context, q Query) (*Page, error) {
	v := url.Values{}
	v.Set("api_key", c.apiKey)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if len(q.GenreIDs) > 0 {
		v.Set("with_genres", joinInts(q.GenreIDs, ","))
	}
	if len(q.ProviderIDs) > 0 {
		v.Set("with_watch_providers", joinInts(q.ProviderIDs, "|"))
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "popularity.desc"
	}
	v.Set("sort_by", sortBy)
	if q.MinYear > 0 {
		v.Set("primary_release_date.gte", fmt.Sprintf("%d-01-01", q.MinYear))
	}
	if q.MaxYear > 0 {
		v.Set("primary_release_date.lte", fmt.Sprintf("%d-12-31", q.MaxYear))
	}
	if !q.MinRating.IsZero() {
		v.Set("vote_average.gte", q.MinRating.String())
	}

	endpoint := fmt.Sprintf("%s/discover/%s?%s", c.baseURL, q.ContentType, v.Encode())

	page := &Page{}
	if err := c.getJSON(ctx, endpoint, page); err != nil {
		return nil, fmt.Errorf("catalog discover: %w", err)
	}
	return page, nil
}

// Details fetches the full record for one title.
func (c *Client) Details(ctx context.Context, contentType string, id int64) (*Details, error) {
	v := url.Values{}
	v.Set("api_key", c.apiKey)

	endpoint := fmt.Sprintf("%s/%s/%d?%s", c.baseURL, contentType, id, v.Encode())

	d := &Details{}
	if err := c.getJSON(ctx, endpoint, d); err != nil {
		return nil, fmt.Errorf("catalog details for %d: %w", id, err)
	}
	return d, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func joinInts(ids []int, sep string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, sep)
}

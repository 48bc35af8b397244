package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDiscoverBuildsQuery(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"page": 3,
			"total_pages": 120,
			"results": [
				{"id": 550, "title": "Fight Club", "poster_path": "/fc.jpg", "vote_average": 8.4, "release_date": "1999-10-15", "genre_ids": [18, 53]},
				{"id": 1399, "name": "Game of Thrones", "poster_path": "/got.jpg", "vote_average": 8.2, "first_air_date": "2011-04-17"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	page, err := c.Discover(context.Background(), Query{
		ContentType: "movie",
		GenreIDs:    []int{28, 35},
		ProviderIDs: []int{8, 337},
		Page:        3,
		MinYear:     2000,
		MaxYear:     2024,
		MinRating:   decimal.NewFromFloat(6.5),
	})
	require.NoError(t, err)

	require.Equal(t, "/discover/movie", gotPath)
	require.Equal(t, "test-key", gotQuery["api_key"])
	require.Equal(t, "3", gotQuery["page"])
	require.Equal(t, "28,35", gotQuery["with_genres"])
	require.Equal(t, "8|337", gotQuery["with_watch_providers"])
	require.Equal(t, "popularity.desc", gotQuery["sort_by"])
	require.Equal(t, "2000-01-01", gotQuery["primary_release_date.gte"])
	require.Equal(t, "2024-12-31", gotQuery["primary_release_date.lte"])
	require.Equal(t, "6.5", gotQuery["vote_average.gte"])

	require.Equal(t, 3, page.Page)
	require.Equal(t, 120, page.TotalPages)
	require.Len(t, page.Results, 2)

	movie := page.Results[0]
	require.Equal(t, int64(550), movie.ID)
	require.Equal(t, "Fight Club", movie.DisplayTitle())
	require.Equal(t, "1999-10-15", movie.Released())
	require.True(t, movie.VoteAverage.Equal(decimal.NewFromFloat(8.4)))

	show := page.Results[1]
	require.Equal(t, "Game of Thrones", show.DisplayTitle())
	require.Equal(t, "2011-04-17", show.Released())
}

func TestDiscoverOmitsEmptyFilters(t *testing.T) {
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"page": 1, "total_pages": 1, "results": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	_, err := c.Discover(context.Background(), Query{ContentType: "tv"})
	require.NoError(t, err)

	require.NotContains(t, gotQuery, "with_genres")
	require.NotContains(t, gotQuery, "with_watch_providers")
	require.NotContains(t, gotQuery, "primary_release_date.gte")
	require.NotContains(t, gotQuery, "vote_average.gte")
	require.NotContains(t, gotQuery, "page")
}

func TestDiscoverUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	_, err := c.Discover(context.Background(), Query{ContentType: "movie"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/550", r.URL.Path)
		w.Write([]byte(`{"id": 550, "title": "Fight Club", "overview": "an insomniac", "runtime": 139, "genres": [{"id": 18, "name": "Drama"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	d, err := c.Details(context.Background(), "movie", 550)
	require.NoError(t, err)
	require.Equal(t, "Fight Club", d.Title)
	require.Equal(t, 139, d.Runtime)
	require.Len(t, d.Genres, 1)
	require.Equal(t, "Drama", d.Genres[0].Name)
}

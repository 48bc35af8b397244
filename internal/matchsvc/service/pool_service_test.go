package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cinewave/match-services/internal/catalog"
)

func TestBuildPoolFiltersAndDedups(t *testing.T) {
	cat := &fakeCatalog{
		discoverFunc: func(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
			return &catalog.Page{
				Page:       1,
				TotalPages: 1,
				Results: []catalog.Item{
					{ID: 1, Title: "keeper", PosterPath: "/1.jpg", VoteAverage: decimal.NewFromFloat(7.2), ReleaseDate: "2020-05-01"},
					{ID: 1, Title: "duplicate keeper", PosterPath: "/1.jpg", VoteAverage: decimal.NewFromFloat(7.2), ReleaseDate: "2020-05-01"},
					{ID: 2, Title: "no poster", PosterPath: "", VoteAverage: decimal.NewFromFloat(8.0), ReleaseDate: "2020-05-01"},
					{ID: 3, Title: "too old", PosterPath: "/3.jpg", VoteAverage: decimal.NewFromFloat(8.0), ReleaseDate: "1995-05-01"},
					{ID: 4, Title: "too new", PosterPath: "/4.jpg", VoteAverage: decimal.NewFromFloat(8.0), ReleaseDate: "2030-05-01"},
					{ID: 5, Title: "too weak", PosterPath: "/5.jpg", VoteAverage: decimal.NewFromFloat(4.1), ReleaseDate: "2021-05-01"},
					{ID: 6, Title: "undated", PosterPath: "/6.jpg", VoteAverage: decimal.NewFromFloat(9.0), ReleaseDate: ""},
					{ID: 7, Name: "tv keeper", PosterPath: "/7.jpg", VoteAverage: decimal.NewFromFloat(6.5), FirstAirDate: "2022-01-15"},
				},
			}, nil
		},
	}
	svc := NewPoolService(cat, rand.New(rand.NewSource(3)))

	pool, err := svc.BuildPool(context.Background(), PoolFilter{
		ContentType: "movie",
		MinYear:     2000,
		MaxYear:     2025,
		MinRating:   decimal.NewFromFloat(6.0),
	})
	require.NoError(t, err)
	require.Len(t, pool, 2)

	titles := map[int64]string{}
	for _, item := range pool {
		titles[item.ID] = item.Title
		require.Equal(t, "movie", item.MediaType)
	}
	require.Equal(t, "keeper", titles[1])
	require.Equal(t, "tv keeper", titles[7], "name/first_air_date fields must normalize too")
}

func TestBuildPoolNoFilters(t *testing.T) {
	cat := &fakeCatalog{
		discoverFunc: func(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
			return catalogPage(15), nil
		},
	}
	svc := NewPoolService(cat, rand.New(rand.NewSource(3)))

	pool, err := svc.BuildPool(context.Background(), PoolFilter{ContentType: "movie"})
	require.NoError(t, err)
	require.Len(t, pool, 15)
}

func TestBuildPoolPicksRandomPage(t *testing.T) {
	var requestedPages []int
	cat := &fakeCatalog{
		discoverFunc: func(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
			requestedPages = append(requestedPages, q.Page)
			page := catalogPage(20)
			page.Page = q.Page
			page.TotalPages = 500
			return page, nil
		},
	}
	svc := NewPoolService(cat, rand.New(rand.NewSource(99)))

	_, err := svc.BuildPool(context.Background(), PoolFilter{ContentType: "movie"})
	require.NoError(t, err)

	require.Equal(t, 1, requestedPages[0], "first call probes page one")
	for _, page := range requestedPages[1:] {
		require.Greater(t, page, 1)
		require.LessOrEqual(t, page, maxDiscoverPage, "page pick must stay within relevance bounds")
	}
}

func TestBuildPoolSinglePageSkipsSecondFetch(t *testing.T) {
	calls := 0
	cat := &fakeCatalog{
		discoverFunc: func(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
			calls++
			return catalogPage(5), nil
		},
	}
	svc := NewPoolService(cat, rand.New(rand.NewSource(3)))

	_, err := svc.BuildPool(context.Background(), PoolFilter{ContentType: "tv"})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestBuildPoolCatalogError(t *testing.T) {
	cat := &fakeCatalog{
		discoverFunc: func(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
			return nil, errors.New("upstream down")
		},
	}
	svc := NewPoolService(cat, rand.New(rand.NewSource(3)))

	_, err := svc.BuildPool(context.Background(), PoolFilter{ContentType: "movie"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool probe failed")
}

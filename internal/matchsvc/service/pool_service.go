package service

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cinewave/match-services/internal/catalog"
	"github.com/cinewave/match-services/internal/matchsvc/models"
	"github.com/cinewave/match-services/internal/shuffle"
)

// Catalog is the consumed slice of the external media catalog.
type Catalog interface {
	Discover(ctx context.Context, q catalog.Query) (*catalog.Page, error)
}

// maxDiscoverPage bounds the random page pick; deeper pages drift into
// low-relevance titles.
const maxDiscoverPage = 20

type PoolFilter struct {
	ContentType string
	GenreIDs    []int
	ProviderIDs []int
	MinYear     int
	MaxYear     int
	MinRating   decimal.Decimal
}

// PoolService builds shuffled candidate pools from the external catalog.
type PoolService struct {
	catalog Catalog

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPoolService(c Catalog, rnd *rand.Rand) *PoolService {
	return &PoolService{catalog: c, rnd: rnd}
}

// BuildPool probes the catalog for the page count, fetches one uniformly
// random page within bounds, re-filters the results strictly (the upstream
// query parameters are best effort only) and returns a shuffled,
// deduplicated pool.
func (s *PoolService) BuildPool(ctx context.Context, f PoolFilter) ([]models.MediaItem, error) {
	q := catalog.Query{
		ContentType: f.ContentType,
		GenreIDs:    f.GenreIDs,
		ProviderIDs: f.ProviderIDs,
		MinYear:     f.MinYear,
		MaxYear:     f.MaxYear,
		MinRating:   f.MinRating,
		Page:        1,
	}

	probe, err := s.catalog.Discover(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pool probe failed: %w", err)
	}

	page := probe
	if pick := s.pickPage(probe.TotalPages); pick > 1 {
		q.Page = pick
		page, err = s.catalog.Discover(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("pool page %d failed: %w", pick, err)
		}
	}

	pool := s.normalize(page.Results, f)

	s.mu.Lock()
	shuffle.Shuffle(s.rnd, pool)
	s.mu.Unlock()

	return pool, nil
}

func (s *PoolService) pickPage(totalPages int) int {
	if totalPages < 2 {
		return 1
	}
	if totalPages > maxDiscoverPage {
		totalPages = maxDiscoverPage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return 1 + s.rnd.Intn(totalPages)
}

// normalize maps raw catalog items to the card shape, dropping anything a
// card cannot render (no poster) or that slipped past the upstream filters.
func (s *PoolService) normalize(items []catalog.Item, f PoolFilter) []models.MediaItem {
	seen := make(map[int64]bool, len(items))
	pool := make([]models.MediaItem, 0, len(items))

	for _, item := range items {
		if item.PosterPath == "" || seen[item.ID] {
			continue
		}
		if !inYearRange(item.Released(), f.MinYear, f.MaxYear) {
			continue
		}
		if !f.MinRating.IsZero() && item.VoteAverage.LessThan(f.MinRating) {
			continue
		}

		seen[item.ID] = true
		pool = append(pool, models.MediaItem{
			ID:          item.ID,
			Title:       item.DisplayTitle(),
			PosterPath:  item.PosterPath,
			VoteAverage: item.VoteAverage,
			ReleaseDate: item.Released(),
			MediaType:   f.ContentType,
		})
	}

	return pool
}

func inYearRange(released string, minYear, maxYear int) bool {
	if minYear == 0 && maxYear == 0 {
		return true
	}
	if len(released) < 4 {
		return false
	}
	year, err := strconv.Atoi(released[:4])
	if err != nil {
		return false
	}
	if minYear > 0 && year < minYear {
		return false
	}
	if maxYear > 0 && year > maxYear {
		return false
	}
	return true
}

package catalog

import (
	"context"
	"fmt"
)

type pageFetcher interface {
	FetchItem(ctx context.Context, externalID string) ([]byte, error)
}

type pageSaver interface {
	Save(ctx context.Context, externalID string, page []byte) error
}

// Scraper fetches an item page and persists it in the cache.
type Scraper struct {
	fetcher pageFetcher
	cache   pageSaver
}

// NewScraper returns a Scraper.
func NewScraper(fetcher pageFetcher, cache pageSaver) *Scraper {
	return &Scraper{fetcher: fetcher, cache: cache}
}

// Scrape fetches and stores externalID.
func (s *Scraper) Scrape(ctx context.Context, externalID string) error {
	page, err := s.fetcher.FetchItem(ctx, externalID)
	if err != nil {
		return fmt.Errorf("can't fetch item %s: %w", externalID, err)
	}
	return s.cache.Save(ctx, externalID, page)
}

package indexing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/site-search/internal/index"
)

// Statistics summarizes the index per configured site.
type Statistics struct {
	Total    Totals
	Detailed []SiteStatistics
}

// Totals aggregates over every configured site.
type Totals struct {
	Sites    int
	Pages    int
	Lemmas   int
	Indexing bool
}

// SiteStatistics describes one configured site. Sites never crawled report StatusQueued.
type SiteStatistics struct {
	URL        string
	Name       string
	Status     index.SiteStatus
	StatusTime time.Time
	Error      string
	Pages      int
	Lemmas     int
}

// Statistics reports counts for the configured sites in configuration order.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		Total:    Totals{Sites: len(s.sites)},
		Detailed: make([]SiteStatistics, 0, len(s.sites)),
	}
	for _, cfg := range s.sites {
		item := SiteStatistics{URL: cfg.URL, Name: cfg.Name, Status: index.StatusQueued}
		site, err := s.store.SiteByURL(ctx, cfg.URL)
		switch {
		case errors.Is(err, index.ErrNotFound):
			stats.Detailed = append(stats.Detailed, item)
			continue
		case err != nil:
			return Statistics{}, fmt.Errorf("find site %s: %w", cfg.URL, err)
		}

		item.Status = site.Status
		item.StatusTime = site.StatusTime
		item.Error = site.LastError
		if item.Pages, err = s.store.CountPages(ctx, site.ID); err != nil {
			return Statistics{}, fmt.Errorf("count pages of %s: %w", cfg.URL, err)
		}
		if item.Lemmas, err = s.store.CountLemmas(ctx, site.ID); err != nil {
			return Statistics{}, fmt.Errorf("count lemmas of %s: %w", cfg.URL, err)
		}
		stats.Total.Pages += item.Pages
		stats.Total.Lemmas += item.Lemmas
		if site.Status == index.StatusCrawling {
			stats.Total.Indexing = true
		}
		stats.Detailed = append(stats.Detailed, item)
	}
	return stats, nil
}

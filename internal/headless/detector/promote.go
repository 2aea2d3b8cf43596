package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-search/internal/crawler"
)

// Detector decides whether a plain fetch result needs rendering.
type Detector interface {
	ShouldPromote(resp crawler.FetchResponse) bool
}

// Fetcher fetches with a cheap plain fetch and re-fetches through the headless fetcher only
// when the detector asks for it. A failed render falls back to the plain response.
type Fetcher struct {
	plain    crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewFetcher builds a promoting Fetcher.
func NewFetcher(plain, headless crawler.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{plain: plain, headless: headless, detector: detector, logger: logger}
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.plain.Fetch(ctx, request)
	if err != nil || !f.detector.ShouldPromote(resp) {
		return resp, err
	}

	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("headless promotion canceled: %w", ctx.Err())
		}
		f.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	rendered.UsedHeadless = true
	f.logger.Debug("headless promotion applied", zap.String("url", request.URL))
	return rendered, nil
}

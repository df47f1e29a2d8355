package scanner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polysignal/internal/domain"
	"github.com/alejandrodnm/polysignal/internal/ports"
)

// fetchEventTimesConcurrent pide los horarios de evento de todos los slugs en
// paralelo con un worker pool. Las consultas de metadata no dependen del
// ledger, así que pueden adelantarse al scoring secuencial; el rate limiter
// del cliente sigue acotando la tasa real de peticiones.
//
// Los slugs sin respuesta no aparecen en el mapa.
func fetchEventTimesConcurrent(
	ctx context.Context,
	meta ports.MetadataProvider,
	windows []domain.MarketWindow,
	workers int,
) map[string]domain.EventTimes {
	if meta == nil {
		return nil
	}
	if workers <= 0 {
		workers = 4
	}

	slugs := make([]string, 0, len(windows))
	seen := make(map[string]bool, len(windows))
	for _, w := range windows {
		if w.Slug != "" && !seen[w.Slug] {
			seen[w.Slug] = true
			slugs = append(slugs, w.Slug)
		}
	}

	type result struct {
		slug  string
		times domain.EventTimes
	}

	workCh := make(chan string, len(slugs))
	resultCh := make(chan result, len(slugs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slug := range workCh {
				times, err := meta.FetchEventTimes(ctx, slug)
				if err != nil {
					slog.Debug("event times unavailable", "slug", slug, "err", err)
					continue
				}
				resultCh <- result{slug: slug, times: times}
			}
		}()
	}

	for _, slug := range slugs {
		workCh <- slug
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[string]domain.EventTimes, len(slugs))
	for r := range resultCh {
		out[r.slug] = r.times
	}

	slog.Debug("event times fetched",
		"slugs", len(slugs),
		"resolved", len(out),
		"workers", workers,
	)
	return out
}

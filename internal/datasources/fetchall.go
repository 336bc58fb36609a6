package datasources

import (
	"context"
	"sync"

	"github.com/amenityscan/amenityscan/internal/config"
)

// FetchAll fetches every source table through the given fetcher with at most
// maxConcurrent requests in flight. Results keep the input order regardless
// of completion order; the first error cancels the remaining fetches.
func FetchAll(ctx context.Context, fetcher Fetcher, sources []config.SourceMapping, maxConcurrent int) ([]RawTable, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tables := make([]RawTable, len(sources))
	errs := make([]error, len(sources))
	sem := make(chan struct{}, maxConcurrent)

	// firstErr keeps the fetch error that triggered cancellation; siblings
	// that die with context.Canceled must not mask it.
	var (
		firstErr  error
		errorOnce sync.Once
	)

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src config.SourceMapping) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}

			table, err := fetcher.Fetch(ctx, src)
			if err != nil {
				errs[i] = err
				errorOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			tables[i] = table
		}(i, src)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return tables, nil
}

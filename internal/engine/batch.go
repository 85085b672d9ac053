package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// RunBatched runs worker over items in chunks of batchSize with at most
// maxConcurrency chunks in flight. Items inside a chunk run sequentially.
//
// A failing or panicking item is reported to onFailure (which may be called
// from several goroutines) and skipped; siblings keep going. Results are
// concatenated in chunk order, so input order is preserved.
func RunBatched[T, R any](
	ctx context.Context,
	items []T,
	batchSize, maxConcurrency int,
	worker func(context.Context, T) (R, error),
	onFailure func(T, error),
) []R {
	chunks := Chunk(items, batchSize)
	if len(chunks) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([][]R, len(chunks))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out := make([]R, 0, len(chunk))
			for _, item := range chunk {
				r, err := callWorker(ctx, worker, item)
				if err != nil {
					if onFailure != nil {
						onFailure(item, err)
					}
					continue
				}
				out = append(out, r)
			}
			results[i] = out
			return nil
		})
	}
	// Chunk goroutines never return errors
	_ = g.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]R, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

func callWorker[T, R any](ctx context.Context, worker func(context.Context, T) (R, error), item T) (r R, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker panic: %v", rec)
		}
	}()
	return worker(ctx, item)
}

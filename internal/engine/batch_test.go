package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestChunkSizes(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for i, want := range []int{2, 2, 1} {
		if len(chunks[i]) != want {
			t.Errorf("Chunk %d: expected %d items, got %d", i, want, len(chunks[i]))
		}
	}
	if got := Chunk([]int{}, 3); len(got) != 0 {
		t.Errorf("Expected no chunks for empty input, got %d", len(got))
	}
}

func TestRunBatchedPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	out := RunBatched(context.Background(), items, 2, 3,
		func(_ context.Context, n int) (int, error) {
			// Later items finish first
			time.Sleep(time.Duration(6-n) * time.Millisecond)
			return n * 10, nil
		}, nil)

	if len(out) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(out))
	}
	for i, r := range out {
		if r != items[i]*10 {
			t.Errorf("Result %d: expected %d, got %d", i, items[i]*10, r)
		}
	}
}

func TestRunBatchedBoundsConcurrency(t *testing.T) {
	items := make([]int, 40)
	var inFlight, peak atomic.Int32

	RunBatched(context.Background(), items, 1, 3,
		func(_ context.Context, _ int) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return 0, nil
		}, nil)

	if peak.Load() > 3 {
		t.Errorf("Expected at most 3 concurrent chunks, saw %d", peak.Load())
	}
}

func TestRunBatchedSkipsFailures(t *testing.T) {
	var mu sync.Mutex
	var failed []int

	out := RunBatched(context.Background(), []int{1, 2, 3, 4, 5}, 2, 2,
		func(_ context.Context, n int) (int, error) {
			switch n {
			case 2:
				return 0, errors.New("bad item")
			case 4:
				panic("worker exploded")
			}
			return n, nil
		},
		func(n int, err error) {
			mu.Lock()
			failed = append(failed, n)
			mu.Unlock()
		})

	if len(out) != 3 || out[0] != 1 || out[1] != 3 || out[2] != 5 {
		t.Errorf("Expected siblings [1 3 5] to survive, got %v", out)
	}
	if len(failed) != 2 {
		t.Errorf("Expected 2 failures reported, got %v", failed)
	}
}

package workers_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asrprep/internal/workers"
)

func TestRunPreservesSubmissionOrder(t *testing.T) {
	jobs := make([]workers.Job[int], 20)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) (int, error) {
			// later jobs finish first
			time.Sleep(time.Duration(20-i) * time.Millisecond)
			return i * i, nil
		}
	}

	results, err := workers.Run(context.Background(), 5, jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	values, err := workers.Values(results)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	for i, v := range values {
		if v != i*i {
			t.Fatalf("result %d: got %d want %d", i, v, i*i)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	jobs := make([]workers.Job[struct{}], 12)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}
	}

	if _, err := workers.Run(context.Background(), 3, jobs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent jobs, saw %d", peak.Load())
	}
}

func TestRunFirstErrorAbortsBatch(t *testing.T) {
	boom := errors.New("boom")
	var started atomic.Int32
	jobs := make([]workers.Job[int], 10)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) (int, error) {
			started.Add(1)
			if i == 0 {
				return 0, boom
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Second):
				return i, nil
			}
		}
	}

	results, err := workers.Run(context.Background(), 1, jobs)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("expected one result slot per job, got %d", len(results))
	}
	if _, err := workers.Values(results); !errors.Is(err, boom) {
		t.Fatalf("Values should surface boom first, got %v", err)
	}
	if started.Load() != 1 {
		t.Fatalf("expected only the failing job to start with one worker, started %d", started.Load())
	}
	if err := workers.Errors(results); !errors.Is(err, boom) {
		t.Fatalf("Errors should include boom, got %v", err)
	}
}

func TestRunProgressAndDefaults(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	jobs := []workers.Job[string]{
		func(context.Context) (string, error) { return "a", nil },
		func(context.Context) (string, error) { return "b", nil },
	}

	results, err := workers.Run(context.Background(), 0, jobs, workers.WithProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if total != 2 {
			t.Errorf("unexpected total %d", total)
		}
		seen = append(seen, done)
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 || results[1].Value != "b" {
		t.Fatalf("unexpected results %+v", results)
	}
	if len(seen) != 2 || seen[1] != 2 {
		t.Fatalf("unexpected progress calls %v", seen)
	}
}

func TestRunRespectsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := []workers.Job[int]{
		func(context.Context) (int, error) { return 1, nil },
	}
	_, err := workers.Run(ctx, 2, jobs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

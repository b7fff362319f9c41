package fetch

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/time/rate"

	"hut-availability-backend/internal/model"
	"hut-availability-backend/internal/scheduler"
	"hut-availability-backend/internal/source"
)

// HutDays is one hut's fetched snapshots over the requested range.
type HutDays struct {
	Hut  model.Hut
	Days []source.Day
}

// Failure records a per-hut fetch error within a batch.
type Failure struct {
	Hut model.Hut
	Err error
}

// BatchResult is what one batch produced: successfully fetched huts,
// per-hut failures, and Err when the source stayed unreachable after
// all retries. Partial fetches survive a batch-level failure.
type BatchResult struct {
	Index    int
	Total    int
	Fetched  []HutDays
	Failures []Failure
	Err      error
}

// Options bundles the explicit knobs of a fetch run so callers never
// depend on ambient settings.
type Options struct {
	BatchSize   int
	MinInterval time.Duration
	Retries     int
	Backoff     time.Duration
	Start       time.Time
	Days        int
}

// Batcher turns an ordered candidate list into a stream of fetched
// batches. External calls are strictly sequential with at least
// MinInterval between consecutive calls to the same source.
type Batcher struct {
	client   source.Client
	opts     Options
	limiters map[string]*rate.Limiter
}

// NewBatcher creates a batcher over the given source client.
func NewBatcher(client source.Client, opts Options) *Batcher {
	return &Batcher{
		client:   client,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Partition splits candidates into chunks of size. Exposed so dry runs
// can report batch composition without fetching anything.
func Partition(candidates []scheduler.Candidate, size int) [][]scheduler.Candidate {
	if size <= 0 {
		size = 1
	}
	var chunks [][]scheduler.Candidate
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		chunks = append(chunks, candidates[start:end])
	}
	return chunks
}

// Run streams batch results over an unbuffered channel so the consumer
// can start reconciling before fetching completes. Cancellation is
// honored between batches only; a started batch runs to its own
// completion or failure.
func (b *Batcher) Run(ctx context.Context, candidates []scheduler.Candidate) <-chan BatchResult {
	results := make(chan BatchResult)
	chunks := Partition(candidates, b.opts.BatchSize)

	go func() {
		defer close(results)
		for i, chunk := range chunks {
			select {
			case <-ctx.Done():
				log.Printf("Fetch run cancelled after %d of %d batches", i, len(chunks))
				return
			default:
			}
			results <- b.fetchBatch(chunk, i, len(chunks))
		}
	}()
	return results
}

// fetchBatch fetches one chunk sequentially. A per-hut error is logged
// and recorded without aborting the batch; a source-unavailable error
// is retried with exponential backoff, and on exhaustion the batch is
// reported failed with whatever was already fetched.
func (b *Batcher) fetchBatch(chunk []scheduler.Candidate, index, total int) BatchResult {
	result := BatchResult{Index: index, Total: total}

	for _, cand := range chunk {
		days, err := b.fetchWithRetry(cand.Hut)
		if err != nil {
			if errors.Is(err, source.ErrUnavailable) {
				log.Printf("Batch %d/%d: source unreachable after retries: %v", index+1, total, err)
				result.Err = err
				return result
			}
			log.Printf("Batch %d/%d: fetch failed for hut %q: %v", index+1, total, cand.Hut.Slug, err)
			result.Failures = append(result.Failures, Failure{Hut: cand.Hut, Err: err})
			continue
		}
		result.Fetched = append(result.Fetched, HutDays{Hut: cand.Hut, Days: days})
	}
	return result
}

func (b *Batcher) fetchWithRetry(hut model.Hut) ([]source.Day, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := b.opts.Backoff << (attempt - 1)
			log.Printf("Source unavailable, retry %d/%d in %s", attempt, b.opts.Retries, backoff)
			time.Sleep(backoff)
		}
		// The background context is intentional: an in-flight batch
		// always completes, and the pacing must hold regardless of the
		// run's cancellation state.
		if err := b.limiter(hut.SourceSlug).Wait(context.Background()); err != nil {
			return nil, err
		}

		days, err := b.client.FetchAvailability(context.Background(), hut, b.opts.Start, b.opts.Days)
		if err == nil {
			return days, nil
		}
		if !errors.Is(err, source.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// limiter returns the pacing limiter for a source, creating it on
// first use. Rate limits are per source, not global: independently
// rate-limited sources do not slow each other down.
func (b *Batcher) limiter(sourceSlug string) *rate.Limiter {
	if lim, ok := b.limiters[sourceSlug]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(b.opts.MinInterval), 1)
	b.limiters[sourceSlug] = lim
	return lim
}

package tracker

import (
	"context"
	"fmt"
	"log"
	"time"

	"hut-availability-backend/config"
	"hut-availability-backend/internal/fetch"
	"hut-availability-backend/internal/model"
	"hut-availability-backend/internal/reconcile"
	"hut-availability-backend/internal/scheduler"
	"hut-availability-backend/internal/source"
	"hut-availability-backend/internal/store"
)

// EventType labels a progress event.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventBatchPlanned   EventType = "batch_planned"
	EventBatchCommitted EventType = "batch_committed"
	EventBatchFailed    EventType = "batch_failed"
	EventRunFinished    EventType = "run_finished"
)

// Event is one progress notification. The engine never renders
// progress itself; whoever runs it subscribes and decides how (or
// whether) to display these.
type Event struct {
	Type         EventType
	Batch        int
	TotalBatches int
	Candidates   int
	Huts         []string
	Result       *reconcile.CommitResult
	Err          error
}

// RunOptions are the explicit parameters of one refresh run. Zero
// values fall back to the configured defaults.
type RunOptions struct {
	// HutSlug restricts the run to a single hut.
	HutSlug string
	// ForceAll refreshes every trackable hut regardless of priority.
	ForceAll bool
	// DryRun computes the due set and batch partitioning but performs
	// no external calls and no writes.
	DryRun bool

	WindowDays  int
	FetchDays   int
	BatchSize   int
	MinInterval time.Duration
}

// Summary is the machine-readable outcome of a run.
type Summary struct {
	Candidates    int                     `json:"candidates"`
	Batches       int                     `json:"batches"`
	FailedBatches int                     `json:"failedBatches"`
	Counts        reconcile.CommitResult  `json:"counts"`
	DryRun        bool                    `json:"dryRun"`
	StartedAt     time.Time               `json:"startedAt"`
	Duration      time.Duration           `json:"durationNs"`
}

// Tracker wires the scheduler, the fetch batcher and the
// reconciliation engine into one refresh pipeline.
type Tracker struct {
	cfg    *config.Config
	store  store.Store
	src    source.Client
	engine *reconcile.Engine
}

// New creates a tracker.
func New(cfg *config.Config, s store.Store, src source.Client) *Tracker {
	return &Tracker{
		cfg:    cfg,
		store:  s,
		src:    src,
		engine: reconcile.NewEngine(s),
	}
}

// Run executes one refresh: select due huts, fetch them in batches,
// reconcile each batch transactionally. Events are sent to events if
// non-nil; the caller must drain the channel. The returned error is
// non-nil only for run-level failures (a commit that failed after its
// retry); fetch-level trouble is reported through the summary instead.
func (t *Tracker) Run(ctx context.Context, opts RunOptions, events chan<- Event) (*Summary, error) {
	opts = t.withDefaults(opts)
	now := time.Now().UTC()
	summary := &Summary{StartedAt: now, DryRun: opts.DryRun}
	defer func() { summary.Duration = time.Since(now) }()

	candidates, err := t.selectCandidates(ctx, now, opts)
	if err != nil {
		return summary, err
	}
	summary.Candidates = len(candidates)
	emit(events, Event{Type: EventRunStarted, Candidates: len(candidates)})

	batches := fetch.Partition(candidates, opts.BatchSize)
	summary.Batches = len(batches)
	for i, b := range batches {
		slugs := make([]string, len(b))
		for j, c := range b {
			slugs[j] = c.Hut.Slug
		}
		emit(events, Event{Type: EventBatchPlanned, Batch: i + 1, TotalBatches: len(batches), Huts: slugs})
	}

	if opts.DryRun || len(candidates) == 0 {
		emit(events, Event{Type: EventRunFinished, Result: &summary.Counts})
		return summary, nil
	}

	batcher := fetch.NewBatcher(t.src, fetch.Options{
		BatchSize:   opts.BatchSize,
		MinInterval: opts.MinInterval,
		Retries:     t.cfg.Source.Retries,
		Backoff:     t.cfg.Source.RetryBackoff,
		Start:       model.Midnight(now),
		Days:        opts.FetchDays,
	})

	for res := range batcher.Run(ctx, candidates) {
		if res.Err != nil {
			summary.FailedBatches++
			emit(events, Event{Type: EventBatchFailed, Batch: res.Index + 1, TotalBatches: res.Total, Err: res.Err})
			// Partial fetches from the failed batch still reconcile.
		}

		batchNow := time.Now().UTC()
		counts, err := t.engine.ReconcileBatch(ctx, batchNow, res)
		summary.Counts.Add(counts)
		if err != nil {
			// Commit failed even after the retry: fatal for the run,
			// batches committed before this one stay durable.
			emit(events, Event{Type: EventRunFinished, Err: err, Result: &summary.Counts})
			return summary, fmt.Errorf("batch %d/%d: %w", res.Index+1, res.Total, err)
		}
		if res.Err == nil {
			emit(events, Event{Type: EventBatchCommitted, Batch: res.Index + 1, TotalBatches: res.Total, Result: &counts})
		}
	}

	emit(events, Event{Type: EventRunFinished, Result: &summary.Counts})
	return summary, nil
}

// RunLoop runs priority-based refreshes periodically until the context
// is cancelled. Used by the serve daemon.
func (t *Tracker) RunLoop(ctx context.Context) {
	if !t.cfg.Tracker.Enabled {
		log.Println("Tracker is disabled. Not starting.")
		return
	}
	log.Println("Starting availability tracker...")

	t.runOnce(ctx)

	timer := time.NewTimer(t.cfg.Tracker.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Availability tracker shutting down.")
			return
		case <-timer.C:
			t.runOnce(ctx)
			timer.Reset(t.cfg.Tracker.Interval)
		}
	}
}

func (t *Tracker) runOnce(ctx context.Context) {
	summary, err := t.Run(ctx, RunOptions{}, nil)
	if err != nil {
		log.Printf("Refresh run failed: %v", err)
		return
	}
	log.Printf("Refresh run finished: %d candidates, %d batches (%d failed), created=%d changed=%d touched=%d rejected=%d failed=%d in %s",
		summary.Candidates, summary.Batches, summary.FailedBatches,
		summary.Counts.Created, summary.Counts.Changed, summary.Counts.Touched,
		summary.Counts.Rejected, summary.Counts.Failed, summary.Duration.Round(time.Millisecond))
}

func (t *Tracker) withDefaults(opts RunOptions) RunOptions {
	if opts.WindowDays <= 0 {
		opts.WindowDays = t.cfg.Tracker.WindowDays
	}
	if opts.FetchDays <= 0 {
		opts.FetchDays = t.cfg.Tracker.FetchDays
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = t.cfg.Tracker.BatchSize
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = t.cfg.Source.RequestInterval
	}
	return opts
}

func (t *Tracker) selectCandidates(ctx context.Context, now time.Time, opts RunOptions) ([]scheduler.Candidate, error) {
	if opts.HutSlug != "" {
		hut, err := t.store.HutBySlug(ctx, opts.HutSlug)
		if err != nil {
			return nil, fmt.Errorf("hut %q not found: %w", opts.HutSlug, err)
		}
		if !hut.Trackable() {
			return nil, fmt.Errorf("hut %q has no booking reference", opts.HutSlug)
		}
		return []scheduler.Candidate{{Hut: *hut, Tier: scheduler.TierHigh}}, nil
	}

	huts, err := t.store.TrackedHuts(ctx)
	if err != nil {
		return nil, err
	}

	if opts.ForceAll {
		candidates := make([]scheduler.Candidate, len(huts))
		for i, h := range huts {
			candidates[i] = scheduler.Candidate{Hut: h, Tier: scheduler.TierHigh}
		}
		return candidates, nil
	}

	windowStart := model.Midnight(now)
	windowEnd := windowStart.AddDate(0, 0, opts.WindowDays)
	current, err := t.store.CurrentWithinWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	statuses, err := t.store.FetchStatuses(ctx)
	if err != nil {
		return nil, err
	}

	iv := scheduler.IntervalsFromConfig(&t.cfg.Tracker)
	return scheduler.SelectDue(now, opts.WindowDays, huts, current, statuses, iv), nil
}

func emit(events chan<- Event, ev Event) {
	if events != nil {
		events <- ev
	}
}

package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"hut-availability-backend/internal/fetch"
	"hut-availability-backend/internal/model"
	"hut-availability-backend/internal/store"
)

// CommitResult counts what one reconciled batch did.
type CommitResult struct {
	Created  int `json:"created"`
	Changed  int `json:"changed"`
	Touched  int `json:"touched"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Add accumulates another batch's counts, for run-level summaries.
func (r *CommitResult) Add(other CommitResult) {
	r.Created += other.Created
	r.Changed += other.Changed
	r.Touched += other.Touched
	r.Rejected += other.Rejected
	r.Failed += other.Failed
}

// Engine diffs fetched snapshots against the stored state and commits
// the result. One batch maps to one transaction; the commit is retried
// once and a second failure is surfaced to the caller as fatal.
type Engine struct {
	store store.Store
}

// NewEngine creates a reconciliation engine over the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// ReconcileBatch validates and diffs one fetched batch, then applies
// all resulting writes atomically. The reconciliation time now is the
// single timestamp stamped onto every row the batch touches.
//
// Re-applying an identical batch is idempotent: the same current rows
// are upserted with identical values and only last_checked advances,
// while the open history entries are touched rather than duplicated.
func (e *Engine) ReconcileBatch(ctx context.Context, now time.Time, batch fetch.BatchResult) (CommitResult, error) {
	var result CommitResult
	plan := store.BatchPlan{Now: now}

	for _, f := range batch.Failures {
		plan.FailedHuts = append(plan.FailedHuts, f.Hut.ID)
	}

	hutIDs := make([]int64, 0, len(batch.Fetched))
	var from, to time.Time
	for _, hd := range batch.Fetched {
		if len(hd.Days) == 0 {
			// The source answered but knows nothing about this hut;
			// count it against the hut so the scheduler demotes it.
			plan.FailedHuts = append(plan.FailedHuts, hd.Hut.ID)
			continue
		}
		hutIDs = append(hutIDs, hd.Hut.ID)
		plan.SucceededHuts = append(plan.SucceededHuts, hd.Hut.ID)
		for _, day := range hd.Days {
			if from.IsZero() || day.Date.Before(from) {
				from = day.Date
			}
			if to.IsZero() || day.Date.After(to) {
				to = day.Date
			}
		}
	}
	result.Failed = len(plan.FailedHuts)

	if len(hutIDs) > 0 {
		to = to.AddDate(0, 0, 1)
		current, err := e.store.LoadCurrent(ctx, hutIDs, from, to)
		if err != nil {
			return result, err
		}
		openHistory, err := e.store.LoadOpenHistory(ctx, hutIDs, from, to)
		if err != nil {
			return result, err
		}
		e.buildPlan(now, batch.Fetched, current, openHistory, &plan, &result)
	}

	if err := e.commitWithRetry(ctx, &plan); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) buildPlan(
	now time.Time,
	fetched []fetch.HutDays,
	current map[store.DayKey]model.Availability,
	openHistory map[store.DayKey]model.AvailabilityHistory,
	plan *store.BatchPlan,
	result *CommitResult,
) {
	seen := make(map[store.DayKey]bool)

	for _, hd := range fetched {
		for _, day := range hd.Days {
			if day.Free < 0 || day.Total <= 0 || day.Free > day.Total {
				log.Printf("Rejecting snapshot for hut %q on %s: free=%d total=%d",
					hd.Hut.Slug, day.Date.Format("2006-01-02"), day.Free, day.Total)
				result.Rejected++
				continue
			}
			key := store.KeyFor(hd.Hut.ID, day.Date, hd.Hut.SourceSlug)
			if seen[key] {
				continue
			}
			seen[key] = true

			percent, steps, occStatus := model.DeriveOccupancy(day.Free, day.Total)
			row := model.Availability{
				HutID:             hd.Hut.ID,
				AvailabilityDate:  day.Date,
				SourceSlug:        hd.Hut.SourceSlug,
				SourceID:          hd.Hut.SourceID,
				Free:              day.Free,
				Total:             day.Total,
				OccupancyPercent:  percent,
				OccupancySteps:    steps,
				OccupancyStatus:   occStatus,
				ReservationStatus: day.ReservationStatus,
				Link:              day.Link,
				HutType:           day.HutType,
				FirstChecked:      now,
				LastChecked:       now,
			}

			cur, exists := current[key]
			open, hasOpen := openHistory[key]

			switch {
			case !exists:
				plan.InsertHistory = append(plan.InsertHistory, historyFrom(&row, now))
				result.Created++
			case cur.Changed(day.Free, day.Total):
				// Close the open entry at the same instant the new one
				// opens, so intervals stay gap-free.
				if hasOpen {
					plan.TouchHistoryIDs = append(plan.TouchHistoryIDs, open.ID)
				}
				plan.InsertHistory = append(plan.InsertHistory, historyFrom(&row, now))
				row.FirstChecked = cur.FirstChecked
				result.Changed++
			default:
				if hasOpen {
					plan.TouchHistoryIDs = append(plan.TouchHistoryIDs, open.ID)
				} else {
					// Missing open entry for an existing row; reopen the
					// log rather than leave the key untracked.
					plan.InsertHistory = append(plan.InsertHistory, historyFrom(&row, now))
				}
				row.FirstChecked = cur.FirstChecked
				result.Touched++
			}
			plan.UpsertCurrent = append(plan.UpsertCurrent, row)
		}
	}
}

func historyFrom(row *model.Availability, now time.Time) model.AvailabilityHistory {
	return model.AvailabilityHistory{
		HutID:             row.HutID,
		AvailabilityDate:  row.AvailabilityDate,
		SourceSlug:        row.SourceSlug,
		Free:              row.Free,
		Total:             row.Total,
		OccupancyPercent:  row.OccupancyPercent,
		OccupancyStatus:   row.OccupancyStatus,
		ReservationStatus: row.ReservationStatus,
		HutType:           row.HutType,
		FirstChecked:      now,
		LastChecked:       now,
	}
}

func (e *Engine) commitWithRetry(ctx context.Context, plan *store.BatchPlan) error {
	if err := e.store.CommitBatch(ctx, plan); err != nil {
		log.Printf("Batch commit failed, retrying once: %v", err)
		if err := e.store.CommitBatch(ctx, plan); err != nil {
			return fmt.Errorf("batch commit failed after retry: %w", err)
		}
	}
	return nil
}

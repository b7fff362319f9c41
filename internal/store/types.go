package store

import (
	"time"

	"hut-availability-backend/internal/model"
)

// DayKey identifies one (hut, date, source) slot in both stores.
type DayKey struct {
	HutID  int64
	Date   string // calendar date, formatted 2006-01-02
	Source string
}

// KeyFor builds the map key for a hut/date/source triple.
func KeyFor(hutID int64, date time.Time, source string) DayKey {
	return DayKey{HutID: hutID, Date: model.Midnight(date).Format("2006-01-02"), Source: source}
}

// BatchPlan is the full set of writes for one reconciled batch. Every
// timestamp inside it derives from the single reconciliation time Now,
// so rows committed together never disagree about when the batch ran.
type BatchPlan struct {
	Now time.Time

	// UpsertCurrent carries created, changed and merely-touched rows
	// alike; the conflict clause preserves first_checked on existing
	// rows and the value columns are idempotent for unchanged states.
	UpsertCurrent []model.Availability

	// InsertHistory holds the new interval entries (first fetches and
	// state changes), each with FirstChecked == LastChecked == Now.
	InsertHistory []model.AvailabilityHistory

	// TouchHistoryIDs are the open history entries whose LastChecked
	// advances to Now. For changed states this closes the entry at the
	// same instant its successor opens.
	TouchHistoryIDs []int64

	// Fetch bookkeeping for the huts covered by this batch.
	SucceededHuts []int64
	FailedHuts    []int64
}

// Empty reports whether the plan performs no writes at all.
func (p *BatchPlan) Empty() bool {
	return len(p.UpsertCurrent) == 0 && len(p.InsertHistory) == 0 &&
		len(p.TouchHistoryIDs) == 0 && len(p.SucceededHuts) == 0 && len(p.FailedHuts) == 0
}

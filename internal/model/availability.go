package model

import "time"

// Availability is the current-state table: one row per
// (hut, date, source) holding the latest known free/total counts.
// Optimized for fast reads; mutated only by the reconciliation engine.
type Availability struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	HutID            int64     `gorm:"not null;uniqueIndex:uniq_hut_date_source;index" json:"hutId"`
	AvailabilityDate time.Time `gorm:"not null;uniqueIndex:uniq_hut_date_source;index" json:"date"`
	SourceSlug       string    `gorm:"size:32;not null;uniqueIndex:uniq_hut_date_source" json:"source"`
	// SourceID is the hut's identifier in the source booking system.
	SourceID string `gorm:"size:100" json:"sourceId"`

	Free  int `gorm:"not null" json:"free"`
	Total int `gorm:"not null" json:"total"`

	// Derived fields, stored for fast retrieval.
	OccupancyPercent  float64           `gorm:"not null" json:"occupancyPercent"`
	OccupancySteps    int               `gorm:"not null" json:"occupancySteps"`
	OccupancyStatus   OccupancyStatus   `gorm:"size:20;not null" json:"occupancyStatus"`
	ReservationStatus ReservationStatus `gorm:"size:20;not null" json:"reservationStatus"`

	Link    string `gorm:"size:500" json:"link,omitempty"`
	HutType string `gorm:"size:32" json:"hutType,omitempty"`

	// FirstChecked is set once on creation; LastChecked advances on
	// every reconciliation that touches the row and never moves back.
	FirstChecked time.Time `gorm:"not null" json:"firstChecked"`
	LastChecked  time.Time `gorm:"not null;index" json:"lastChecked"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	Hut Hut `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Changed reports whether a fresh snapshot differs from the stored
// state. Only the raw counts participate; derived fields follow them.
func (a *Availability) Changed(free, total int) bool {
	return a.Free != free || a.Total != total
}

// AvailabilityHistory is the append-only log of distinct availability
// states. A new entry is written only when (free,total) changes; while
// a state holds, the open entry's LastChecked advances instead. For a
// fixed (hut, date, source) the entries are totally ordered by
// FirstChecked with entry[i].LastChecked <= entry[i+1].FirstChecked.
type AvailabilityHistory struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	HutID            int64     `gorm:"not null;index:idx_history_key" json:"hutId"`
	AvailabilityDate time.Time `gorm:"not null;index:idx_history_key" json:"date"`
	SourceSlug       string    `gorm:"size:32;not null;index:idx_history_key" json:"source"`

	Free  int `gorm:"not null" json:"free"`
	Total int `gorm:"not null" json:"total"`

	OccupancyPercent  float64           `gorm:"not null" json:"occupancyPercent"`
	OccupancyStatus   OccupancyStatus   `gorm:"size:20;not null" json:"occupancyStatus"`
	ReservationStatus ReservationStatus `gorm:"size:20;not null" json:"reservationStatus"`
	HutType           string            `gorm:"size:32" json:"hutType,omitempty"`

	// FirstChecked: when this state was first observed.
	// LastChecked: when it was last confirmed still holding. The fetch
	// that observes a new state closes the previous entry with the same
	// timestamp it opens the next one, so intervals never gap.
	FirstChecked time.Time `gorm:"not null;index:idx_history_key;index" json:"firstChecked"`
	LastChecked  time.Time `gorm:"not null" json:"lastChecked"`

	CreatedAt time.Time `json:"-"`
}

// Duration is how long the recorded state was observed to hold.
func (h *AvailabilityHistory) Duration() time.Duration {
	return h.LastChecked.Sub(h.FirstChecked)
}

// FetchStatus records per-hut fetch bookkeeping so that huts are
// tracked even when the source returns no data for them: last attempt,
// last success, and a consecutive failure count that demotes
// repeatedly-empty huts to a slow recheck cadence.
type FetchStatus struct {
	HutID               int64      `gorm:"primaryKey" json:"hutId"`
	LastChecked         time.Time  `gorm:"not null;index" json:"lastChecked"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	HasData             bool       `gorm:"not null;default:false" json:"hasData"`
	ConsecutiveFailures int        `gorm:"not null;default:0" json:"consecutiveFailures"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Midnight truncates a timestamp to its UTC calendar date. Availability
// dates are stored normalized this way so range comparisons stay exact
// across drivers.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

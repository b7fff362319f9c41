package model

import "time"

// Hut represents a tracked accommodation entity. Rows are owned by the
// directory layer; the tracking engine only reads them.
type Hut struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	Slug       string `gorm:"size:128;uniqueIndex;not null" json:"slug"`
	Name       string `gorm:"size:256;not null" json:"name"`
	SourceSlug string `gorm:"size:32;not null" json:"source"`
	// SourceID is the hut's identifier in the source booking system.
	SourceID string `gorm:"size:100" json:"sourceId"`
	// BookingRef is nil for huts that cannot be queried upstream.
	BookingRef *string `gorm:"size:128" json:"bookingRef,omitempty"`
	IsActive   bool    `gorm:"not null;default:true" json:"isActive"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Trackable reports whether the hut can be refreshed from its source.
func (h *Hut) Trackable() bool {
	return h.IsActive && h.BookingRef != nil && *h.BookingRef != ""
}

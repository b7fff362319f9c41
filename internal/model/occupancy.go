package model

import "math"

// OccupancyStatus classifies how full a hut is on a given date.
type OccupancyStatus string

const (
	OccupancyEmpty   OccupancyStatus = "empty"
	OccupancyLow     OccupancyStatus = "low"
	OccupancyMedium  OccupancyStatus = "medium"
	OccupancyHigh    OccupancyStatus = "high"
	OccupancyFull    OccupancyStatus = "full"
	OccupancyUnknown OccupancyStatus = "unknown"
)

// ReservationStatus describes whether a booking can be made upstream.
type ReservationStatus string

const (
	ReservationUnknown     ReservationStatus = "unknown"
	ReservationPossible    ReservationStatus = "possible"
	ReservationNotPossible ReservationStatus = "not_possible"
	ReservationNotOnline   ReservationStatus = "not_online"
)

// Occupancy thresholds, in percent occupied.
const (
	OccupancyHighThreshold = 75.0
	OccupancyLowThreshold  = 25.0
)

// DeriveOccupancy computes the stored occupancy fields from raw
// free/total counts. total <= 0 yields the unknown status with zero
// percent; validation rejects such snapshots before persistence, so
// that path only serves reads of legacy rows.
func DeriveOccupancy(free, total int) (percent float64, steps int, status OccupancyStatus) {
	if total <= 0 {
		return 0, 0, OccupancyUnknown
	}
	percent = float64(total-free) / float64(total) * 100
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	steps = int(math.Round(percent/10)) * 10

	switch {
	case free == 0:
		status = OccupancyFull
	case percent == 0:
		status = OccupancyEmpty
	case percent > OccupancyHighThreshold:
		status = OccupancyHigh
	case percent > OccupancyLowThreshold:
		status = OccupancyMedium
	default:
		status = OccupancyLow
	}
	return percent, steps, status
}

package scheduler

import (
	"sort"
	"time"

	"hut-availability-backend/config"
	"hut-availability-backend/internal/model"
)

// Tier is the priority classification of a hut/date, derived from how
// full it is. Fuller dates change hands faster and are re-checked more
// often.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// TierFor maps an occupancy percentage to its priority tier.
func TierFor(occupancyPercent float64) Tier {
	switch {
	case occupancyPercent > model.OccupancyHighThreshold:
		return TierHigh
	case occupancyPercent > model.OccupancyLowThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Intervals holds the minimum re-check interval per tier, plus the
// slow cadence for huts that keep returning no data.
type Intervals struct {
	High     time.Duration
	Medium   time.Duration
	Low      time.Duration
	Inactive time.Duration
}

// IntervalsFromConfig converts the configured minute counts.
func IntervalsFromConfig(cfg *config.TrackerConfig) Intervals {
	return Intervals{
		High:     time.Duration(cfg.HighPriorityMinutes) * time.Minute,
		Medium:   time.Duration(cfg.MediumPriorityMinutes) * time.Minute,
		Low:      time.Duration(cfg.LowPriorityMinutes) * time.Minute,
		Inactive: time.Duration(cfg.InactivePriorityMinutes) * time.Minute,
	}
}

func (iv Intervals) forTier(t Tier) time.Duration {
	switch t {
	case TierHigh:
		return iv.High
	case TierMedium:
		return iv.Medium
	default:
		return iv.Low
	}
}

// Candidate is one hut selected for a refresh, with the reason it was
// picked. A hut is scheduled once per cycle regardless of how many of
// its dates are due; the fetch covers the full date range in one call.
type Candidate struct {
	Hut model.Hut
	// Discovery is true when the hut has never been checked at all.
	Discovery bool
	// Tier is the highest tier among the dates that made the hut due.
	Tier Tier
	// LastChecked is the oldest last-checked timestamp among the hut's
	// due dates (or the fetch status timestamp for rechecks). Zero for
	// discovery candidates.
	LastChecked time.Time
}

// SelectDue decides which huts need a refresh now. Pure selection, no
// side effects; always returns a (possibly empty) ordered list.
//
// A hut is due when any of its dates inside the forecast window has
// last_checked + tier_interval <= now, when it previously returned no
// data and the inactive interval has elapsed, or when it has a booking
// reference but has never been checked (discovery). Dates that have
// rolled out of the window simply stop contributing.
//
// Ordering: discovery huts first, then by tier high to low, then by
// staleness with the oldest last_checked first.
func SelectDue(
	now time.Time,
	windowDays int,
	huts []model.Hut,
	current []model.Availability,
	statuses map[int64]model.FetchStatus,
	iv Intervals,
) []Candidate {
	windowStart := model.Midnight(now)
	windowEnd := windowStart.AddDate(0, 0, windowDays)

	type hutState struct {
		hasRows     bool
		due         bool
		tier        Tier
		lastChecked time.Time
	}
	states := make(map[int64]*hutState, len(huts))
	for _, h := range huts {
		states[h.ID] = &hutState{}
	}

	for _, row := range current {
		st, ok := states[row.HutID]
		if !ok {
			continue
		}
		if row.AvailabilityDate.Before(windowStart) || !row.AvailabilityDate.Before(windowEnd) {
			continue
		}
		st.hasRows = true
		tier := TierFor(row.OccupancyPercent)
		nextAllowed := row.LastChecked.Add(iv.forTier(tier))
		if nextAllowed.After(now) {
			continue
		}
		if !st.due || tier > st.tier {
			st.tier = tier
		}
		if st.lastChecked.IsZero() || row.LastChecked.Before(st.lastChecked) {
			st.lastChecked = row.LastChecked
		}
		st.due = true
	}

	var out []Candidate
	for _, h := range huts {
		if !h.Trackable() {
			continue
		}
		st := states[h.ID]
		switch {
		case st.due:
			out = append(out, Candidate{Hut: h, Tier: st.tier, LastChecked: st.lastChecked})
		case st.hasRows:
			// Has in-window data and nothing is stale yet.
		default:
			status, checked := statuses[h.ID]
			if !checked {
				out = append(out, Candidate{Hut: h, Discovery: true})
			} else if !status.LastChecked.Add(iv.Inactive).After(now) {
				out = append(out, Candidate{Hut: h, Tier: TierLow, LastChecked: status.LastChecked})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Discovery != b.Discovery {
			return a.Discovery
		}
		if a.Tier != b.Tier {
			return a.Tier > b.Tier
		}
		if !a.LastChecked.Equal(b.LastChecked) {
			return a.LastChecked.Before(b.LastChecked)
		}
		return a.Hut.Slug < b.Hut.Slug
	})
	return out
}

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hut-availability-backend/internal/model"
)

var testIntervals = Intervals{
	High:     30 * time.Minute,
	Medium:   3 * time.Hour,
	Low:      24 * time.Hour,
	Inactive: 7 * 24 * time.Hour,
}

func ref(s string) *string { return &s }

func hut(id int64, slug string) model.Hut {
	return model.Hut{ID: id, Slug: slug, SourceSlug: "hrs", BookingRef: ref("ref-" + slug), IsActive: true}
}

func row(hutID int64, date time.Time, occupancy float64, lastChecked time.Time) model.Availability {
	return model.Availability{
		HutID:            hutID,
		AvailabilityDate: model.Midnight(date),
		SourceSlug:       "hrs",
		OccupancyPercent: occupancy,
		LastChecked:      lastChecked,
	}
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierHigh, TierFor(80))
	assert.Equal(t, TierMedium, TierFor(75))
	assert.Equal(t, TierMedium, TierFor(50))
	assert.Equal(t, TierLow, TierFor(25))
	assert.Equal(t, TierLow, TierFor(0))
}

func TestSelectDueHighTierBoundary(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	h := hut(1, "aarbiwak")
	tomorrow := now.AddDate(0, 0, 1)

	t.Run("29 minutes old is not due", func(t *testing.T) {
		current := []model.Availability{row(1, tomorrow, 80, now.Add(-29*time.Minute))}
		due := SelectDue(now, 14, []model.Hut{h}, current, nil, testIntervals)
		assert.Empty(t, due)
	})

	t.Run("31 minutes old is due", func(t *testing.T) {
		current := []model.Availability{row(1, tomorrow, 80, now.Add(-31*time.Minute))}
		due := SelectDue(now, 14, []model.Hut{h}, current, nil, testIntervals)
		require.Len(t, due, 1)
		assert.Equal(t, int64(1), due[0].Hut.ID)
		assert.Equal(t, TierHigh, due[0].Tier)
		assert.False(t, due[0].Discovery)
	})
}

func TestSelectDueNeverCheckedIsDiscovery(t *testing.T) {
	now := time.Now().UTC()
	h := hut(1, "almageller")

	due := SelectDue(now, 14, []model.Hut{h}, nil, nil, testIntervals)
	require.Len(t, due, 1)
	assert.True(t, due[0].Discovery)
}

func TestSelectDueIgnoresUntrackableHuts(t *testing.T) {
	now := time.Now().UTC()
	noRef := model.Hut{ID: 1, Slug: "no-ref", IsActive: true}
	inactive := model.Hut{ID: 2, Slug: "inactive", BookingRef: ref("x"), IsActive: false}

	due := SelectDue(now, 14, []model.Hut{noRef, inactive}, nil, nil, testIntervals)
	assert.Empty(t, due)
}

func TestSelectDueDateOutsideWindowIsDropped(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	h := hut(1, "blueemlisalp")

	// Very stale, but past and beyond-window dates do not count. With no
	// in-window rows and a fresh fetch status the hut stays idle.
	current := []model.Availability{
		row(1, now.AddDate(0, 0, -1), 90, now.Add(-48*time.Hour)),
		row(1, now.AddDate(0, 0, 20), 90, now.Add(-48*time.Hour)),
	}
	statuses := map[int64]model.FetchStatus{
		1: {HutID: 1, LastChecked: now.Add(-time.Hour)},
	}
	due := SelectDue(now, 14, []model.Hut{h}, current, statuses, testIntervals)
	assert.Empty(t, due)
}

func TestSelectDueInactiveRecheck(t *testing.T) {
	now := time.Now().UTC()
	h := hut(1, "cabane-blanche")

	t.Run("recently failed hut is not due", func(t *testing.T) {
		statuses := map[int64]model.FetchStatus{
			1: {HutID: 1, LastChecked: now.Add(-24 * time.Hour), ConsecutiveFailures: 2},
		}
		due := SelectDue(now, 14, []model.Hut{h}, nil, statuses, testIntervals)
		assert.Empty(t, due)
	})

	t.Run("failed hut is rechecked after the inactive interval", func(t *testing.T) {
		statuses := map[int64]model.FetchStatus{
			1: {HutID: 1, LastChecked: now.Add(-8 * 24 * time.Hour), ConsecutiveFailures: 2},
		}
		due := SelectDue(now, 14, []model.Hut{h}, nil, statuses, testIntervals)
		require.Len(t, due, 1)
		assert.False(t, due[0].Discovery)
		assert.Equal(t, TierLow, due[0].Tier)
	})
}

func TestSelectDueOrdering(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	tomorrow := now.AddDate(0, 0, 1)

	huts := []model.Hut{
		hut(1, "low-stale"),
		hut(2, "high-fresh"),
		hut(3, "high-stale"),
		hut(4, "brand-new"),
		hut(5, "medium"),
	}
	current := []model.Availability{
		row(1, tomorrow, 10, now.Add(-48*time.Hour)),
		row(2, tomorrow, 90, now.Add(-1*time.Hour)),
		row(3, tomorrow, 90, now.Add(-3*time.Hour)),
		row(5, tomorrow, 50, now.Add(-4*time.Hour)),
	}

	due := SelectDue(now, 14, huts, current, nil, testIntervals)
	require.Len(t, due, 5)

	slugs := make([]string, len(due))
	for i, c := range due {
		slugs[i] = c.Hut.Slug
	}
	// Discovery first, then high tier oldest-first, then medium, then low.
	assert.Equal(t, []string{"brand-new", "high-stale", "high-fresh", "medium", "low-stale"}, slugs)
}

func TestSelectDueOncePerHutAcrossDates(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	h := hut(1, "multi-date")

	current := []model.Availability{
		row(1, now.AddDate(0, 0, 1), 90, now.Add(-2*time.Hour)),
		row(1, now.AddDate(0, 0, 2), 90, now.Add(-5*time.Hour)),
		row(1, now.AddDate(0, 0, 3), 10, now.Add(-50*time.Hour)),
	}
	due := SelectDue(now, 14, []model.Hut{h}, current, nil, testIntervals)
	require.Len(t, due, 1)
	assert.Equal(t, TierHigh, due[0].Tier)
	// Staleness tie-break uses the oldest due date's last_checked.
	assert.Equal(t, now.Add(-50*time.Hour), due[0].LastChecked)
}

package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hut-availability-backend/config"
	"hut-availability-backend/internal/db"
	"hut-availability-backend/internal/model"
	"hut-availability-backend/internal/source"
	"hut-availability-backend/internal/store"
	"hut-availability-backend/internal/tracker"
)

type mockDay struct {
	Date              string `json:"date"`
	Free              int    `json:"free"`
	Total             int    `json:"total"`
	ReservationStatus string `json:"reservationStatus"`
	HutType           string `json:"hutType"`
	Link              string `json:"link"`
}

type mockResponse struct {
	HutID  string    `json:"hutId"`
	Source string    `json:"source"`
	Days   []mockDay `json:"days"`
}

// mockBookingServer serves canned availability per booking reference.
// Refs mapped to a nil slice answer 404, refs in broken answer 500.
func mockBookingServer(t *testing.T, responses map[string][]mockDay, broken map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		// /api/v1/huts/{ref}/availability
		require.Len(t, parts, 6)
		ref := parts[4]

		if broken[ref] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		days, ok := responses[ref]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(mockResponse{HutID: ref, Source: "hrs", Days: days})
		assert.NoError(t, err)
	}))
}

func setupTest(t *testing.T, baseURL string) (*gorm.DB, store.Store, *tracker.Tracker) {
	t.Helper()
	testDB, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Source.BaseURL = baseURL
	cfg.Source.Retries = 1
	cfg.Source.RetryBackoff = time.Millisecond
	cfg.Source.RequestInterval = time.Millisecond
	cfg.Tracker.FetchDays = 3

	appStore := store.NewGormStore(testDB)
	trk := tracker.New(cfg, appStore, source.NewClient(&cfg.Source))
	return testDB, appStore, trk
}

func seedHuts(t *testing.T, testDB *gorm.DB, n int) []model.Hut {
	t.Helper()
	huts := make([]model.Hut, n)
	for i := range huts {
		ref := fmt.Sprintf("ref-%d", i+1)
		huts[i] = model.Hut{
			Slug:       fmt.Sprintf("hut-%d", i+1),
			Name:       fmt.Sprintf("Hut %d", i+1),
			SourceSlug: "hrs",
			BookingRef: &ref,
			IsActive:   true,
		}
		require.NoError(t, testDB.Create(&huts[i]).Error)
	}
	return huts
}

func days(dates []string, free, total int) []mockDay {
	out := make([]mockDay, len(dates))
	for i, d := range dates {
		out[i] = mockDay{Date: d, Free: free, Total: total, ReservationStatus: "possible", HutType: "serviced"}
	}
	return out
}

// TestAvailabilityLifecycle walks one hut through three refreshes:
// discovery, a state change and an unchanged confirmation, verifying
// the current table and the history log at every step.
func TestAvailabilityLifecycle(t *testing.T) {
	date := model.Midnight(time.Now().UTC().AddDate(0, 0, 1)).Format("2006-01-02")

	responses := map[string][]mockDay{"ref-1": days([]string{date}, 5, 10)}
	server := mockBookingServer(t, responses, nil)
	defer server.Close()

	testDB, _, trk := setupTest(t, server.URL)
	seedHuts(t, testDB, 1)
	ctx := context.Background()

	var firstChecked time.Time
	t.Run("discovery creates current row and history entry", func(t *testing.T) {
		summary, err := trk.Run(ctx, tracker.RunOptions{ForceAll: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Counts.Created)
		assert.Zero(t, summary.FailedBatches)

		var rows []model.Availability
		require.NoError(t, testDB.Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, 5, rows[0].Free)
		assert.Equal(t, model.OccupancyMedium, rows[0].OccupancyStatus)
		assert.Equal(t, model.ReservationPossible, rows[0].ReservationStatus)
		assert.True(t, rows[0].FirstChecked.Equal(rows[0].LastChecked))
		firstChecked = rows[0].FirstChecked

		var history []model.AvailabilityHistory
		require.NoError(t, testDB.Find(&history).Error)
		assert.Len(t, history, 1)
	})

	t.Run("changed counts close the old entry and open a new one", func(t *testing.T) {
		responses["ref-1"] = days([]string{date}, 2, 10)

		summary, err := trk.Run(ctx, tracker.RunOptions{ForceAll: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Counts.Changed)

		var rows []model.Availability
		require.NoError(t, testDB.Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, 2, rows[0].Free)
		assert.True(t, rows[0].FirstChecked.Equal(firstChecked))
		assert.True(t, rows[0].LastChecked.After(firstChecked))

		var history []model.AvailabilityHistory
		require.NoError(t, testDB.Order("first_checked").Find(&history).Error)
		require.Len(t, history, 2)
		assert.Equal(t, 5, history[0].Free)
		assert.Equal(t, 2, history[1].Free)
		assert.True(t, history[0].LastChecked.Equal(history[1].FirstChecked),
			"intervals must not gap or overlap")
	})

	t.Run("unchanged counts only advance the open entry", func(t *testing.T) {
		summary, err := trk.Run(ctx, tracker.RunOptions{ForceAll: true}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Counts.Touched)

		var history []model.AvailabilityHistory
		require.NoError(t, testDB.Order("first_checked").Find(&history).Error)
		require.Len(t, history, 2)
		assert.True(t, history[1].LastChecked.After(history[1].FirstChecked))
	})
}

// TestPartialBatchFailure refreshes five huts in one batch where the
// source knows nothing about the third; the other four must commit and
// the third must be recorded as failed.
func TestPartialBatchFailure(t *testing.T) {
	date := model.Midnight(time.Now().UTC().AddDate(0, 0, 1)).Format("2006-01-02")

	responses := map[string][]mockDay{}
	for _, ref := range []string{"ref-1", "ref-2", "ref-4", "ref-5"} {
		responses[ref] = days([]string{date}, 4, 8)
	}
	server := mockBookingServer(t, responses, nil)
	defer server.Close()

	testDB, appStore, trk := setupTest(t, server.URL)
	huts := seedHuts(t, testDB, 5)

	summary, err := trk.Run(context.Background(), tracker.RunOptions{ForceAll: true, BatchSize: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Counts.Created)
	assert.Equal(t, 1, summary.Counts.Failed)
	assert.Zero(t, summary.FailedBatches, "a per-hut error must not fail the batch")

	var count int64
	require.NoError(t, testDB.Model(&model.Availability{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	statuses, err := appStore.FetchStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, statuses[huts[2].ID].ConsecutiveFailures)
	assert.Zero(t, statuses[huts[0].ID].ConsecutiveFailures)
}

// TestSourceOutagePreservesProgress brings the source down for the
// second of two batches; the first batch's writes stay durable and the
// run reports the failed batch.
func TestSourceOutagePreservesProgress(t *testing.T) {
	date := model.Midnight(time.Now().UTC().AddDate(0, 0, 1)).Format("2006-01-02")

	responses := map[string][]mockDay{"ref-1": days([]string{date}, 4, 8)}
	broken := map[string]bool{"ref-2": true}
	server := mockBookingServer(t, responses, broken)
	defer server.Close()

	testDB, _, trk := setupTest(t, server.URL)
	seedHuts(t, testDB, 2)

	summary, err := trk.Run(context.Background(), tracker.RunOptions{ForceAll: true, BatchSize: 1}, nil)
	require.NoError(t, err, "a failed batch is not a run-level error")
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 1, summary.Counts.Created)

	var count int64
	require.NoError(t, testDB.Model(&model.Availability{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// TestDryRunWritesNothing plans batches without fetching or writing.
func TestDryRunWritesNothing(t *testing.T) {
	server := mockBookingServer(t, nil, nil)
	defer server.Close()

	testDB, _, trk := setupTest(t, server.URL)
	seedHuts(t, testDB, 3)

	events := make(chan tracker.Event, 32)
	summary, err := trk.Run(context.Background(), tracker.RunOptions{ForceAll: true, DryRun: true, BatchSize: 2}, events)
	close(events)
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 2, summary.Batches)

	var planned int
	for ev := range events {
		if ev.Type == tracker.EventBatchPlanned {
			planned++
		}
	}
	assert.Equal(t, 2, planned)

	var count int64
	require.NoError(t, testDB.Model(&model.FetchStatus{}).Count(&count).Error)
	assert.Zero(t, count, "dry run must not write fetch statuses")
}

// TestSingleHutRefresh forces one hut by slug regardless of its
// priority tier.
func TestSingleHutRefresh(t *testing.T) {
	date := model.Midnight(time.Now().UTC().AddDate(0, 0, 1)).Format("2006-01-02")

	responses := map[string][]mockDay{
		"ref-1": days([]string{date}, 4, 8),
		"ref-2": days([]string{date}, 4, 8),
	}
	server := mockBookingServer(t, responses, nil)
	defer server.Close()

	testDB, _, trk := setupTest(t, server.URL)
	huts := seedHuts(t, testDB, 2)

	summary, err := trk.Run(context.Background(), tracker.RunOptions{HutSlug: huts[0].Slug}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Counts.Created)

	var rows []model.Availability
	require.NoError(t, testDB.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, huts[0].ID, rows[0].HutID)
}

// TestScheduledRunSkipsFreshHuts exercises the priority selection end
// to end: a hut just refreshed is not due again immediately.
func TestScheduledRunSkipsFreshHuts(t *testing.T) {
	date := model.Midnight(time.Now().UTC().AddDate(0, 0, 1)).Format("2006-01-02")

	responses := map[string][]mockDay{"ref-1": days([]string{date}, 4, 8)}
	server := mockBookingServer(t, responses, nil)
	defer server.Close()

	testDB, _, trk := setupTest(t, server.URL)
	seedHuts(t, testDB, 1)
	ctx := context.Background()

	// First scheduled run discovers the hut.
	summary, err := trk.Run(ctx, tracker.RunOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)

	// Immediately after, nothing is due.
	summary, err = trk.Run(ctx, tracker.RunOptions{}, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Candidates)

	var count int64
	require.NoError(t, testDB.Model(&model.AvailabilityHistory{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hut-availability-backend/internal/model"
)

// Store defines the persistence operations the engine and the API use.
// All mutation of the availability tables goes through CommitBatch so
// that a batch either fully commits or fully rolls back.
type Store interface {
	DB() *gorm.DB

	// Directory reads.
	ListHuts(ctx context.Context) ([]model.Hut, error)
	TrackedHuts(ctx context.Context) ([]model.Hut, error)
	HutBySlug(ctx context.Context, slug string) (*model.Hut, error)

	// Scheduler inputs.
	CurrentWithinWindow(ctx context.Context, from, to time.Time) ([]model.Availability, error)
	FetchStatuses(ctx context.Context) (map[int64]model.FetchStatus, error)

	// Reconciliation bulk loads, one query each.
	LoadCurrent(ctx context.Context, hutIDs []int64, from, to time.Time) (map[DayKey]model.Availability, error)
	LoadOpenHistory(ctx context.Context, hutIDs []int64, from, to time.Time) (map[DayKey]model.AvailabilityHistory, error)

	// CommitBatch applies one batch plan in a single transaction.
	CommitBatch(ctx context.Context, plan *BatchPlan) error

	// Query surface.
	CurrentForHut(ctx context.Context, hutID int64, from, to time.Time) ([]model.Availability, error)
	TrendForDate(ctx context.Context, hutID int64, target time.Time, since time.Time) ([]model.AvailabilityHistory, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) ListHuts(ctx context.Context) ([]model.Hut, error) {
	var huts []model.Hut
	if err := s.db.WithContext(ctx).Order("slug").Find(&huts).Error; err != nil {
		return nil, fmt.Errorf("failed to list huts: %w", err)
	}
	return huts, nil
}

func (s *gormStore) TrackedHuts(ctx context.Context) ([]model.Hut, error) {
	var huts []model.Hut
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND booking_ref IS NOT NULL AND booking_ref <> ''", true).
		Order("slug").
		Find(&huts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked huts: %w", err)
	}
	return huts, nil
}

func (s *gormStore) HutBySlug(ctx context.Context, slug string) (*model.Hut, error) {
	var hut model.Hut
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&hut).Error; err != nil {
		return nil, err
	}
	return &hut, nil
}

func (s *gormStore) CurrentWithinWindow(ctx context.Context, from, to time.Time) ([]model.Availability, error) {
	var rows []model.Availability
	err := s.db.WithContext(ctx).
		Where("availability_date >= ? AND availability_date < ?", from, to).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load current availability window: %w", err)
	}
	return rows, nil
}

func (s *gormStore) FetchStatuses(ctx context.Context) (map[int64]model.FetchStatus, error) {
	var statuses []model.FetchStatus
	if err := s.db.WithContext(ctx).Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to load fetch statuses: %w", err)
	}
	statusMap := make(map[int64]model.FetchStatus, len(statuses))
	for _, st := range statuses {
		statusMap[st.HutID] = st
	}
	return statusMap, nil
}

func (s *gormStore) LoadCurrent(ctx context.Context, hutIDs []int64, from, to time.Time) (map[DayKey]model.Availability, error) {
	if len(hutIDs) == 0 {
		return map[DayKey]model.Availability{}, nil
	}
	var rows []model.Availability
	err := s.db.WithContext(ctx).
		Where("hut_id IN ? AND availability_date >= ? AND availability_date < ?", hutIDs, from, to).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to bulk-load current availability: %w", err)
	}
	out := make(map[DayKey]model.Availability, len(rows))
	for _, r := range rows {
		out[KeyFor(r.HutID, r.AvailabilityDate, r.SourceSlug)] = r
	}
	return out, nil
}

// LoadOpenHistory returns, per (hut, date, source) key, the history
// entry with the greatest first_checked. Under the single-open-entry
// invariant that is exactly the entry whose LastChecked still moves.
func (s *gormStore) LoadOpenHistory(ctx context.Context, hutIDs []int64, from, to time.Time) (map[DayKey]model.AvailabilityHistory, error) {
	if len(hutIDs) == 0 {
		return map[DayKey]model.AvailabilityHistory{}, nil
	}
	latest := s.db.Model(&model.AvailabilityHistory{}).
		Select("hut_id, availability_date, source_slug, MAX(first_checked) AS max_first_checked").
		Where("hut_id IN ? AND availability_date >= ? AND availability_date < ?", hutIDs, from, to).
		Group("hut_id, availability_date, source_slug")

	var rows []model.AvailabilityHistory
	err := s.db.WithContext(ctx).
		Joins("JOIN (?) AS latest ON latest.hut_id = availability_histories.hut_id"+
			" AND latest.availability_date = availability_histories.availability_date"+
			" AND latest.source_slug = availability_histories.source_slug"+
			" AND latest.max_first_checked = availability_histories.first_checked", latest).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to bulk-load open history entries: %w", err)
	}
	out := make(map[DayKey]model.AvailabilityHistory, len(rows))
	for _, r := range rows {
		out[KeyFor(r.HutID, r.AvailabilityDate, r.SourceSlug)] = r
	}
	return out, nil
}

func (s *gormStore) CommitBatch(ctx context.Context, plan *BatchPlan) error {
	if plan.Empty() {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(plan.UpsertCurrent) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "hut_id"}, {Name: "availability_date"}, {Name: "source_slug"},
				},
				// first_checked is deliberately absent: it survives the
				// lifetime of the row.
				DoUpdates: clause.AssignmentColumns([]string{
					"source_id", "free", "total",
					"occupancy_percent", "occupancy_steps", "occupancy_status",
					"reservation_status", "link", "hut_type",
					"last_checked", "updated_at",
				}),
			}).Create(&plan.UpsertCurrent).Error
			if err != nil {
				return fmt.Errorf("bulk upsert of current availability failed: %w", err)
			}
		}

		if len(plan.TouchHistoryIDs) > 0 {
			err := tx.Model(&model.AvailabilityHistory{}).
				Where("id IN ?", plan.TouchHistoryIDs).
				Update("last_checked", plan.Now).Error
			if err != nil {
				return fmt.Errorf("bulk touch of open history entries failed: %w", err)
			}
		}

		if len(plan.InsertHistory) > 0 {
			if err := tx.Create(&plan.InsertHistory).Error; err != nil {
				return fmt.Errorf("bulk insert of history entries failed: %w", err)
			}
		}

		if err := upsertFetchStatuses(tx, plan); err != nil {
			return err
		}
		return nil
	})
}

func upsertFetchStatuses(tx *gorm.DB, plan *BatchPlan) error {
	if len(plan.SucceededHuts) > 0 {
		now := plan.Now
		rows := make([]model.FetchStatus, 0, len(plan.SucceededHuts))
		for _, id := range plan.SucceededHuts {
			rows = append(rows, model.FetchStatus{
				HutID:       id,
				LastChecked: now,
				LastSuccess: &now,
				HasData:     true,
			})
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hut_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_checked", "last_success", "has_data", "consecutive_failures", "updated_at",
			}),
		}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to mark fetch successes: %w", err)
		}
	}

	if len(plan.FailedHuts) > 0 {
		rows := make([]model.FetchStatus, 0, len(plan.FailedHuts))
		for _, id := range plan.FailedHuts {
			rows = append(rows, model.FetchStatus{
				HutID:               id,
				LastChecked:         plan.Now,
				ConsecutiveFailures: 1,
			})
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hut_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_checked":         plan.Now,
				"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
			}),
		}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to mark fetch failures: %w", err)
		}
	}
	return nil
}

func (s *gormStore) CurrentForHut(ctx context.Context, hutID int64, from, to time.Time) ([]model.Availability, error) {
	var rows []model.Availability
	err := s.db.WithContext(ctx).
		Where("hut_id = ? AND availability_date >= ? AND availability_date < ?", hutID, from, to).
		Order("availability_date").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load current availability for hut %d: %w", hutID, err)
	}
	return rows, nil
}

// TrendForDate returns the history entries for one hut and target date
// first observed at or after since, newest first.
func (s *gormStore) TrendForDate(ctx context.Context, hutID int64, target time.Time, since time.Time) ([]model.AvailabilityHistory, error) {
	var rows []model.AvailabilityHistory
	err := s.db.WithContext(ctx).
		Where("hut_id = ? AND availability_date = ? AND first_checked >= ?", hutID, model.Midnight(target), since).
		Order("first_checked DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trend for hut %d: %w", hutID, err)
	}
	return rows, nil
}

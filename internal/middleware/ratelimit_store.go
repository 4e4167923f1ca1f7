package middleware

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/policyhub/internal/models"
)

// DatabaseRateStore keeps counters in the primary database so that several
// replicas share one budget per caller.
type DatabaseRateStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseRateStore builds a RateStore on the rate_counters table.
func NewDatabaseRateStore(db *gorm.DB, clock func() time.Time) (*DatabaseRateStore, error) {
	if db == nil {
		return nil, errors.New("rate store: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &DatabaseRateStore{db: db, clock: clock}, nil
}

func (s *DatabaseRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock().UTC()

	var counter models.RateCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&counter, "key = ?", key).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			counter = models.RateCounter{Key: key, Count: 1, WindowEnd: now.Add(window)}
			return tx.Create(&counter).Error
		case err != nil:
			return err
		}

		if !now.Before(counter.WindowEnd) {
			counter.Count = 0
			counter.WindowEnd = now.Add(window)
		}
		counter.Count++
		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return counter.Count, counter.WindowEnd.Sub(now), nil
}

// Prune deletes counters whose window has closed.
func (s *DatabaseRateStore) Prune(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("window_end <= ?", s.clock().UTC()).Delete(&models.RateCounter{})
	return result.RowsAffected, result.Error
}

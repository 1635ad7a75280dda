// Package leadership maintains the "who has been on top, and for how long"
// ledger: a non-overlapping history of leadership intervals per distance,
// with at most one open interval (null ended_at) at any time.
package leadership

import (
	"errors"
	"fmt"
	"time"

	"github.com/runasty/runasty/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Overall is the category filter for the unfiltered ranking.
const Overall = ""

// RecordChange applies one confirmed personal best to the ledger for a
// distance. It opens a new interval when the athlete takes the lead, closes
// the previous leader's interval in the same transaction, and updates the
// open interval in place when the current leader improves their own time.
// Re-applying the same winning time is a no-op, so at-least-once delivery is
// safe.
func RecordChange(db *gorm.DB, distance model.Distance, stravaID int64, newTime int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		q := tx.Where("distance = ? AND sex_filter = ? AND ended_at IS NULL", distance, Overall)
		if tx.Dialector.Name() == "postgres" {
			// Serialise racing syncs for the same distance on the open row.
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var open model.LeadershipInterval
		err := q.First(&open).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return openInterval(tx, distance, stravaID, newTime, now)
		}
		if err != nil {
			return fmt.Errorf("looking up open interval for %s: %w", distance, err)
		}

		if newTime >= open.RecordTimeSeconds {
			// Not an improvement. Reconciliation should never send this, but
			// the ledger must not corrupt state when invoked redundantly.
			return nil
		}

		if open.StravaAthleteID == stravaID {
			// The leader improved their own best: correct the open interval
			// in place rather than churning close/open pairs.
			return tx.Model(&open).Update("record_time_seconds", newTime).Error
		}

		if err := tx.Model(&open).Update("ended_at", now).Error; err != nil {
			return fmt.Errorf("closing interval %s: %w", open.ID, err)
		}
		return openInterval(tx, distance, stravaID, newTime, now)
	})
}

func openInterval(tx *gorm.DB, distance model.Distance, stravaID int64, newTime int64, now time.Time) error {
	interval := model.LeadershipInterval{
		StravaAthleteID:   stravaID,
		Distance:          distance,
		SexFilter:         Overall,
		StartedAt:         now,
		RecordTimeSeconds: newTime,
	}
	if err := tx.Create(&interval).Error; err != nil {
		return fmt.Errorf("opening interval for %s: %w", distance, err)
	}
	return nil
}

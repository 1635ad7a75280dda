package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

// Distance identifies one of the fixed race distances tracked by Runasty.
type Distance string

const (
	Distance5K   Distance = "5k"
	Distance10K  Distance = "10k"
	DistanceHalf Distance = "21k"
)

// Distances lists every tracked distance in display order.
var Distances = []Distance{Distance5K, Distance10K, DistanceHalf}

// Meters returns the real-world length of the distance.
func (d Distance) Meters() float64 {
	switch d {
	case Distance5K:
		return 5000
	case Distance10K:
		return 10000
	case DistanceHalf:
		return 21097.5
	}
	return 0
}

// Athlete represents a connected Strava account in the database.
type Athlete struct {
	gorm.Model
	StravaAthleteID int64 `gorm:"uniqueIndex"`
	Username        string
	FullName        string
	AvatarURL       string
	Sex             *string
	AccessToken     string
	RefreshToken    string
	TokenExpiresAt  *time.Time
	LastSyncAt      *time.Time
	RawProfile      pgtype.JSONB `gorm:"type:jsonb;default:'{}'"`
}

// Record holds an athlete's best known time for one distance.
// At most one row exists per (athlete, distance).
type Record struct {
	gorm.Model
	StravaAthleteID  int64    `gorm:"uniqueIndex:idx_records_athlete_distance"`
	Distance         Distance `gorm:"uniqueIndex:idx_records_athlete_distance"`
	TimeSeconds      int64
	AchievedAt       *time.Time
	StravaActivityID *int64
}

// LeadershipInterval is a contiguous span during which one athlete held the
// best known time for a distance. A NULL EndedAt marks the current leader;
// the partial unique index guarantees at most one open row per distance and
// filter.
type LeadershipInterval struct {
	ID                string   `gorm:"type:uuid;primaryKey"`
	StravaAthleteID   int64    `gorm:"index"`
	Distance          Distance `gorm:"uniqueIndex:uniq_open_leader,where:ended_at IS NULL"`
	SexFilter         string   `gorm:"uniqueIndex:uniq_open_leader,where:ended_at IS NULL"` // "" = overall
	StartedAt         time.Time
	EndedAt           *time.Time
	RecordTimeSeconds int64
	CreatedAt         time.Time
}

func (li *LeadershipInterval) BeforeCreate(_ *gorm.DB) error {
	if li.ID == "" {
		li.ID = uuid.NewString()
	}
	return nil
}

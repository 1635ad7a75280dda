package database

import (
	"errors"
	"log"
	"os"

	"github.com/runasty/runasty/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// SetTestDB sets the test database instance for unit tests
var testDB *gorm.DB

func SetTestDB(db *gorm.DB) {
	testDB = db
}

// InitDB initializes the database connection and performs schema migration
func InitDB() (*gorm.DB, error) {
	if testDB != nil {
		return testDB, nil
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// TranslateError maps driver errors onto gorm's sentinel errors so the
	// duplicate-key race in SaveImprovedRecord is recognised.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema for all Runasty tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Athlete{}, &model.Record{}, &model.LeadershipInterval{})
}

// GetAthleteByStravaID returns the athlete with the given Strava id, or nil
// if no such athlete is registered.
func GetAthleteByStravaID(db *gorm.DB, stravaID int64) (*model.Athlete, error) {
	var athlete model.Athlete
	err := db.First(&athlete, "strava_athlete_id = ?", stravaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &athlete, nil
}

// UpsertAthlete creates the athlete on first login and refreshes the profile
// fields on every subsequent login.
func UpsertAthlete(db *gorm.DB, athlete *model.Athlete) error {
	existing, err := GetAthleteByStravaID(db, athlete.StravaAthleteID)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.Create(athlete).Error
	}

	return db.Model(existing).Updates(map[string]interface{}{
		"username":         athlete.Username,
		"full_name":        athlete.FullName,
		"avatar_url":       athlete.AvatarURL,
		"sex":              athlete.Sex,
		"access_token":     athlete.AccessToken,
		"refresh_token":    athlete.RefreshToken,
		"token_expires_at": athlete.TokenExpiresAt,
		"raw_profile":      athlete.RawProfile,
	}).Error
}

// GetAllAthletes returns every registered athlete, newest first.
func GetAllAthletes(db *gorm.DB) ([]model.Athlete, error) {
	var athletes []model.Athlete
	err := db.Order("created_at desc").Find(&athletes).Error
	return athletes, err
}

// GetRecordTimes returns the stored best time per distance for an athlete.
// Distances without a record are absent from the map.
func GetRecordTimes(db *gorm.DB, stravaID int64) (map[model.Distance]int64, error) {
	var records []model.Record
	if err := db.Where("strava_athlete_id = ?", stravaID).Find(&records).Error; err != nil {
		return nil, err
	}

	times := make(map[model.Distance]int64, len(records))
	for _, rec := range records {
		times[rec.Distance] = rec.TimeSeconds
	}
	return times, nil
}

// GetRecordsForAthlete returns the athlete's stored records, shortest
// distance first.
func GetRecordsForAthlete(db *gorm.DB, stravaID int64) ([]model.Record, error) {
	var records []model.Record
	err := db.Where("strava_athlete_id = ?", stravaID).Find(&records).Error
	return records, err
}

// SaveImprovedRecord writes a personal best with a compare-and-swap update so
// a stored time can never increase, even when two syncs race. It reports
// whether a row was actually written.
func SaveImprovedRecord(db *gorm.DB, rec *model.Record) (bool, error) {
	res := db.Model(&model.Record{}).
		Where("strava_athlete_id = ? AND distance = ? AND time_seconds > ?",
			rec.StravaAthleteID, rec.Distance, rec.TimeSeconds).
		Updates(map[string]interface{}{
			"time_seconds":       rec.TimeSeconds,
			"achieved_at":        rec.AchievedAt,
			"strava_activity_id": rec.StravaActivityID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := db.Model(&model.Record{}).
		Where("strava_athlete_id = ? AND distance = ?", rec.StravaAthleteID, rec.Distance).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		// An equal or better time is already stored.
		return false, nil
	}

	if err := db.Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the insert race; the winner's time is at least as good.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LeaderboardEntry is one row of the public ranking for a distance.
type LeaderboardEntry struct {
	StravaAthleteID int64
	Username        string
	FullName        string
	AvatarURL       string
	Sex             *string
	TimeSeconds     int64
	AchievedAt      *string
}

// GetLeaderboard returns the fastest stored times for a distance joined with
// the athletes that hold them. An empty sexFilter returns everyone.
func GetLeaderboard(db *gorm.DB, distance model.Distance, sexFilter string, limit int) ([]LeaderboardEntry, error) {
	q := db.Table("records").
		Select(`records.strava_athlete_id, athletes.username, athletes.full_name,
			athletes.avatar_url, athletes.sex, records.time_seconds, records.achieved_at`).
		Joins("JOIN athletes ON athletes.strava_athlete_id = records.strava_athlete_id").
		Where("records.distance = ?", distance).
		Order("records.time_seconds asc").
		Limit(limit)
	if sexFilter != "" {
		q = q.Where("athletes.sex = ?", sexFilter)
	}

	var entries []LeaderboardEntry
	err := q.Scan(&entries).Error
	return entries, err
}

// GetOpenInterval returns the current open leadership interval for a
// distance and filter, or nil when nobody holds the record yet.
func GetOpenInterval(db *gorm.DB, distance model.Distance, sexFilter string) (*model.LeadershipInterval, error) {
	var interval model.LeadershipInterval
	err := db.Where("distance = ? AND sex_filter = ? AND ended_at IS NULL", distance, sexFilter).
		First(&interval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &interval, nil
}

// GetLeadershipHistory returns all leadership intervals for a distance,
// most recent first.
func GetLeadershipHistory(db *gorm.DB, distance model.Distance) ([]model.LeadershipInterval, error) {
	var intervals []model.LeadershipInterval
	err := db.Where("distance = ?", distance).Order("started_at desc").Find(&intervals).Error
	return intervals, err
}

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jarcoal/httpmock"
	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %s", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %s", err)
	}
	return db
}

func seedAthlete(t *testing.T, db *gorm.DB, lastSyncAt *time.Time) *model.Athlete {
	t.Helper()
	sex := "F"
	expires := time.Now().Add(6 * time.Hour)
	athlete := &model.Athlete{
		StravaAthleteID: 134815,
		Username:        "marianne_runs",
		FullName:        "Marianne Teixeira",
		Sex:             &sex,
		AccessToken:     "a9b723467cd8e9f01234567890abcdef12345678",
		RefreshToken:    "f8e7d6c5b4a39281706f5e4d3c2b1a0987654321",
		TokenExpiresAt:  &expires,
		LastSyncAt:      lastSyncAt,
		RawProfile:      pgtype.JSONB{Status: pgtype.Null},
	}
	if err := db.Create(athlete).Error; err != nil {
		t.Fatalf("failed to seed athlete: %s", err)
	}
	return athlete
}

func mockActivityEndpoints(listBody, detailBody string) {
	httpmock.RegisterResponder("GET", `=~^https://www\.strava\.com/api/v3/athlete/activities`,
		httpmock.NewStringResponder(200, listBody))
	httpmock.RegisterResponder("GET", `=~^https://www\.strava\.com/api/v3/activities/\d+`,
		httpmock.NewStringResponder(200, detailBody))
}

const detailWithEfforts = `{
	"id": 101, "type": "Run", "pr_count": 2,
	"best_efforts": [
		{"name": "5K", "elapsed_time": 1674, "start_date": "2024-05-02T05:10:00Z"},
		{"name": "10K", "elapsed_time": 3480, "start_date": "2024-05-02T05:02:13Z"}
	]
}`

func TestSyncUnknownAthlete(t *testing.T) {
	db := newTestDB(t)

	got := New(db).Sync(context.Background(), 999, Options{})
	if got.Status != StatusFailed || got.Failure != FailureAuth {
		t.Errorf("expected auth failure, got %+v", got)
	}
	if got.Message != "Please log in again" {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestSyncCooldown(t *testing.T) {
	db := newTestDB(t)
	last := time.Now().Add(-2 * time.Minute)
	seedAthlete(t, db, &last)

	got := New(db).Sync(context.Background(), 134815, Options{})
	if got.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %+v", got)
	}
	// 3 minutes of the 5 minute cooldown remain, rounded up.
	if got.WaitMinutes != 3 {
		t.Errorf("expected 3 wait minutes, got %d", got.WaitMinutes)
	}
	if got.Message != "Please wait 3 minutes before syncing again" {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestSyncCooldownBypass(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockActivityEndpoints(`[]`, `{}`)

	tests := []struct {
		name string
		opts Options
	}{
		{"forced", Options{Force: true}},
		{"webhook", Options{AutoSync: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			last := time.Now().Add(-time.Minute)
			seedAthlete(t, db, &last)

			got := New(db).Sync(context.Background(), 134815, tc.opts)
			if got.Status != StatusSynced {
				t.Errorf("expected synced, got %+v", got)
			}
			if got.Message != "No new activities since the last sync" {
				t.Errorf("unexpected message: %q", got.Message)
			}
		})
	}
}

func TestSyncRefreshesExpiringToken(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://www.strava.com/oauth/token",
		httpmock.NewStringResponder(200, `{
			"access_token": "rotated-access", "refresh_token": "rotated-refresh",
			"expires_at": 4102444800, "expires_in": 21600, "token_type": "Bearer"
		}`))
	mockActivityEndpoints(`[]`, `{}`)

	db := newTestDB(t)
	athlete := seedAthlete(t, db, nil)
	soon := time.Now().Add(30 * time.Minute)
	db.Model(athlete).Update("token_expires_at", soon)

	got := New(db).Sync(context.Background(), 134815, Options{})
	if got.Status != StatusSynced {
		t.Fatalf("expected synced, got %+v", got)
	}

	stored, _ := database.GetAthleteByStravaID(db, 134815)
	if stored.AccessToken != "rotated-access" || stored.RefreshToken != "rotated-refresh" {
		t.Errorf("expected the refreshed pair to be persisted, got %+v", stored)
	}
}

func TestSyncRefreshFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://www.strava.com/oauth/token",
		httpmock.NewStringResponder(400, `{"message": "Bad Request"}`))

	db := newTestDB(t)
	athlete := seedAthlete(t, db, nil)
	soon := time.Now().Add(30 * time.Minute)
	db.Model(athlete).Update("token_expires_at", soon)

	got := New(db).Sync(context.Background(), 134815, Options{})
	if got.Status != StatusFailed || got.Failure != FailureAuth {
		t.Errorf("expected auth failure, got %+v", got)
	}
	if got.Message != "Please log in again" {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestSyncListFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", `=~^https://www\.strava\.com/api/v3/athlete/activities`,
		httpmock.NewStringResponder(500, `{"message": "upstream broke"}`))

	db := newTestDB(t)
	seedAthlete(t, db, nil)

	got := New(db).Sync(context.Background(), 134815, Options{})
	if got.Status != StatusFailed || got.Failure != FailureUpstream {
		t.Errorf("expected upstream failure, got %+v", got)
	}
	if got.Message != "Could not reach Strava, please try again later" {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestSyncWritesRecordsAndLeadership(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockActivityEndpoints(`[{"id": 101, "type": "Run", "pr_count": 2}]`, detailWithEfforts)

	db := newTestDB(t)
	seedAthlete(t, db, nil)

	got := New(db).Sync(context.Background(), 134815, Options{})
	if got.Status != StatusSynced {
		t.Fatalf("expected synced, got %+v", got)
	}
	if len(got.Records) != 2 {
		t.Fatalf("expected 2 record deltas, got %+v", got.Records)
	}
	if got.Message != "2 records improved!" {
		t.Errorf("unexpected message: %q", got.Message)
	}
	if got.LeadershipErrors != 0 || got.PersistErrors != 0 {
		t.Errorf("unexpected errors in result: %+v", got)
	}

	times, _ := database.GetRecordTimes(db, 134815)
	if times[model.Distance5K] != 1674 || times[model.Distance10K] != 3480 {
		t.Errorf("unexpected stored times: %+v", times)
	}

	for _, distance := range []model.Distance{model.Distance5K, model.Distance10K} {
		open, err := database.GetOpenInterval(db, distance, "")
		if err != nil {
			t.Fatalf("expected nil error, got %q", err)
		}
		if open == nil || open.StravaAthleteID != 134815 {
			t.Errorf("expected an open %s interval for the athlete, got %+v", distance, open)
		}
	}

	stored, _ := database.GetAthleteByStravaID(db, 134815)
	if stored.LastSyncAt == nil {
		t.Error("expected last_sync_at to be stamped")
	}
}

func TestSyncSecondRunFindsNothingNew(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockActivityEndpoints(`[{"id": 101, "type": "Run", "pr_count": 2}]`, detailWithEfforts)

	db := newTestDB(t)
	seedAthlete(t, db, nil)

	syncer := New(db)
	first := syncer.Sync(context.Background(), 134815, Options{})
	if first.Status != StatusSynced || len(first.Records) != 2 {
		t.Fatalf("unexpected first sync: %+v", first)
	}

	second := syncer.Sync(context.Background(), 134815, Options{Force: true})
	if second.Status != StatusSynced {
		t.Fatalf("expected synced, got %+v", second)
	}
	if len(second.Records) != 0 {
		t.Errorf("expected no new records, got %+v", second.Records)
	}
	if second.Message != "1 run examined, no new records" {
		t.Errorf("unexpected message: %q", second.Message)
	}

	var count int64
	db.Model(&model.LeadershipInterval{}).Count(&count)
	if count != 2 {
		t.Errorf("expected the ledger to stay at 2 intervals, got %d", count)
	}
}

package auth

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/runasty/runasty/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestAuthHandler(t *testing.T) {
	// Discard logs to avoid polluting test output
	log.SetOutput(io.Discard)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	oat := `{
		"access_token":"123456789",
		"token_type":"Bearer",
		"refresh_token":"987654321",
		"athlete":{
			"id":134815,
			"username":"marianne_runs",
			"firstname":"Marianne",
			"lastname":"Teixeira",
			"sex":"F",
			"profile_medium":"https://example.com/avatar.jpg"
			}
		}`

	httpmock.RegisterResponder("POST", "https://www.strava.com/oauth/token",
		httpmock.NewStringResponder(200, oat))

	t.Setenv("STRAVA_CALLBACK_URI", "https://runasty.example.com/webhook")
	httpmock.RegisterResponder("GET", `=~^https://www\.strava\.com/api/v3/push_subscriptions`,
		httpmock.NewStringResponder(200, `[{"id": 1, "callback_url": "https://runasty.example.com/webhook"}]`))

	// The first login kicks off a background sync.
	httpmock.RegisterResponder("GET", `=~^https://www\.strava\.com/api/v3/athlete/activities`,
		httpmock.NewStringResponder(200, `[]`))

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %s", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %s", err)
	}
	database.SetTestDB(db)
	defer database.SetTestDB(nil)

	t.Setenv("STATE_TOKEN", "test-state-token")

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{
			"no state redirects to strava",
			"",
			http.StatusFound,
		},
		{
			"invalid state",
			"?state=invalid-state",
			http.StatusBadRequest,
		},
		{
			"valid state but no code",
			"?state=test-state-token",
			http.StatusBadRequest,
		},
		{
			"valid state and code",
			"?state=test-state-token&code=test-code",
			http.StatusFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest("POST", fmt.Sprintf("/auth%s", tc.query), strings.NewReader("")) //nolint:noctx
			if err != nil {
				t.Fatal(err)
			}
			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(AuthHandler)
			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tc.want {
				t.Errorf("%s: handler returned wrong status code: got %d want %d", tc.name, status, tc.want)
			}
		})
	}

	t.Run("successful login stores the athlete", func(t *testing.T) {
		athlete, err := database.GetAthleteByStravaID(db, 134815)
		if err != nil {
			t.Fatalf("expected nil error, got %q", err)
		}
		if athlete == nil {
			t.Fatal("expected the athlete to be stored")
		}
		if athlete.Username != "marianne_runs" || athlete.FullName != "Marianne Teixeira" {
			t.Errorf("unexpected athlete: %+v", athlete)
		}
		if athlete.AccessToken != "123456789" || athlete.RefreshToken != "987654321" {
			t.Errorf("unexpected tokens: %+v", athlete)
		}
	})
}

func TestAthleteFromToken(t *testing.T) {
	expiry := time.Date(2024, 5, 2, 11, 0, 0, 0, time.UTC)
	profile := map[string]any{
		"id":             float64(134815),
		"username":       "marianne_runs",
		"firstname":      "Marianne",
		"lastname":       "Teixeira",
		"sex":            "F",
		"profile":        "https://example.com/large.jpg",
		"profile_medium": "https://example.com/medium.jpg",
	}

	got := athleteFromToken(profile, "access", "refresh", expiry)
	if got.StravaAthleteID != 134815 {
		t.Errorf("expected id 134815, got %d", got.StravaAthleteID)
	}
	if got.FullName != "Marianne Teixeira" {
		t.Errorf("expected full name, got %q", got.FullName)
	}
	if got.Sex == nil || *got.Sex != "F" {
		t.Errorf("unexpected sex: %v", got.Sex)
	}
	if got.AvatarURL != "https://example.com/medium.jpg" {
		t.Errorf("expected the medium avatar, got %q", got.AvatarURL)
	}
	if got.TokenExpiresAt == nil {
		t.Error("expected token expiry to be set")
	}

	t.Run("first name only", func(t *testing.T) {
		got := athleteFromToken(map[string]any{"id": float64(1), "firstname": "Astrid"}, "a", "r", expiry)
		if got.FullName != "Astrid" {
			t.Errorf("expected Astrid, got %q", got.FullName)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		got := athleteFromToken(map[string]any{}, "a", "r", expiry)
		if got.StravaAthleteID != 0 {
			t.Errorf("expected zero id, got %d", got.StravaAthleteID)
		}
	})
}

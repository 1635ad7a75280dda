// Package strava implements the read-only Strava API surface Runasty
// consumes: athlete profile, activity listings, activity detail with best
// efforts, and OAuth token refresh.
package strava

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/runasty/runasty/internal/client"
	"golang.org/x/oauth2"
)

var (
	BaseURL     = "https://www.strava.com/api/v3"
	OauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		ClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://www.strava.com/oauth/authorize",
			TokenURL: "https://www.strava.com/oauth/token",
		},
		RedirectURL: os.Getenv("STRAVA_REDIRECT_URI"),
		Scopes:      []string{"read,activity:read_all"},
	}
)

const (
	// Strava rate limit budget: ~100 requests per 15 minute window.
	RateLimitRequests = 100
	RateLimitWindow   = 15 * 60

	listTimeout   = 10 * time.Second
	detailTimeout = 5 * time.Second

	maxListPages = 3
)

// Athlete is the authenticated athlete's profile as returned by the API.
type Athlete struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Firstname     string `json:"firstname"`
	Lastname      string `json:"lastname"`
	Sex           string `json:"sex"`
	Profile       string `json:"profile"`
	ProfileMedium string `json:"profile_medium"`
}

// SummaryActivity holds only the fields of a listed activity we care about.
type SummaryActivity struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Distance         float64   `json:"distance"`
	MovingTime       int64     `json:"moving_time"`
	ElapsedTime      int64     `json:"elapsed_time"`
	Type             string    `json:"type"`
	SportType        string    `json:"sport_type"`
	StartDate        time.Time `json:"start_date"`
	PRCount          int       `json:"pr_count"`
	AchievementCount int       `json:"achievement_count"`
}

// BestEffort is a source-reported fastest segment inside a longer activity.
// Name matches against a fixed label table ("5K", "10K", "Half-Marathon").
type BestEffort struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ElapsedTime int64     `json:"elapsed_time"`
	MovingTime  int64     `json:"moving_time"`
	StartDate   time.Time `json:"start_date"`
	Distance    float64   `json:"distance"`
	PRRank      *int      `json:"pr_rank"`
	Activity    struct {
		ID int64 `json:"id"`
	} `json:"activity"`
}

// DetailedActivity is a single activity fetched with include_all_efforts.
type DetailedActivity struct {
	SummaryActivity
	BestEfforts []BestEffort `json:"best_efforts"`
}

// DetailResult is the outcome of a single detail fetch. A skipped fetch
// (timeout, rate limit, API error) is not an error: the sync carries on
// without that activity.
type DetailResult struct {
	Detail  *DetailedActivity
	Skipped string
}

// OK reports whether the fetch produced a usable activity.
func (r DetailResult) OK() bool {
	return r.Detail != nil
}

// TokenResponse is Strava's answer to a refresh-token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// WebhookEvent is the push event Strava POSTs to our webhook endpoint.
type WebhookEvent struct {
	AspectType     string `json:"aspect_type"`
	EventTime      int64  `json:"event_time"`
	ObjectID       int64  `json:"object_id"`
	ObjectType     string `json:"object_type"`
	OwnerID        int64  `json:"owner_id"`
	SubscriptionID int64  `json:"subscription_id"`
}

// TriggersSync reports whether the event should start a sync for its owner.
// Only activity create/update events do; athlete events and deletions are
// acknowledged without action.
func (e *WebhookEvent) TriggersSync() bool {
	return e.ObjectType == "activity" && e.AspectType != "delete"
}

// GetAthlete fetches the authenticated athlete's profile.
func GetAthlete(ctx context.Context, c *client.Client) (*Athlete, error) {
	var a Athlete
	req, err := c.NewRequest(ctx, http.MethodGet, "/api/v3/athlete", nil)
	if err != nil {
		return nil, fmt.Errorf("creating get athlete request: %w", err)
	}

	resp, err := c.Do(req, &a)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("getting athlete: %w", err)
	}

	return &a, nil
}

// GetActivitiesAfter lists the athlete's activities created after the given
// unix timestamp, following pagination until a short page signals the end of
// data. It returns the activities and the number of API calls made.
func GetActivitiesAfter(ctx context.Context, c *client.Client, after int64, perPage int) ([]SummaryActivity, int, error) {
	var all []SummaryActivity
	calls := 0

	for page := 1; page <= maxListPages; page++ {
		lctx, cancel := context.WithTimeout(ctx, listTimeout)
		req, err := c.NewRequest(lctx, http.MethodGet,
			fmt.Sprintf("/api/v3/athlete/activities?after=%d&page=%d&per_page=%d", after, page, perPage), nil)
		if err != nil {
			cancel()
			return nil, calls, fmt.Errorf("creating list activities request: %w", err)
		}

		var activities []SummaryActivity
		resp, err := c.Do(req, &activities)
		cancel()
		if resp != nil {
			defer resp.Body.Close()
		}
		if err != nil {
			if calls == 0 {
				return nil, calls, fmt.Errorf("listing activities after %d: %w", after, err)
			}
			// Later pages are best-effort; keep what we have.
			return all, calls, nil
		}
		calls++

		all = append(all, activities...)
		if len(activities) < perPage {
			break
		}
	}

	return all, calls, nil
}

// GetActivityDetail fetches one activity with all best efforts. Failures are
// folded into the result rather than returned: a rate-limited, timed-out or
// otherwise failed fetch must not abort the rest of a sync.
func GetActivityDetail(ctx context.Context, c *client.Client, id int64) DetailResult {
	dctx, cancel := context.WithTimeout(ctx, detailTimeout)
	defer cancel()

	var d DetailedActivity
	req, err := c.NewRequest(dctx, http.MethodGet,
		fmt.Sprintf("/api/v3/activities/%d?include_all_efforts=true", id), nil)
	if err != nil {
		return DetailResult{Skipped: fmt.Sprintf("bad request: %v", err)}
	}

	resp, err := c.Do(req, &d)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return DetailResult{Skipped: "rate limited"}
		}
		return DetailResult{Skipped: err.Error()}
	}

	return DetailResult{Detail: &d}
}

// RefreshToken exchanges a refresh token for a fresh access/refresh pair.
func RefreshToken(ctx context.Context, c *client.Client, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{
		"client_id":     os.Getenv("STRAVA_CLIENT_ID"),
		"client_secret": os.Getenv("STRAVA_CLIENT_SECRET"),
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}

	var tr TokenResponse
	req, err := c.NewRequest(ctx, http.MethodPost, "/oauth/token", body)
	if err != nil {
		return nil, fmt.Errorf("creating refresh token request: %w", err)
	}

	resp, err := c.Do(req, &tr)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	return &tr, nil
}

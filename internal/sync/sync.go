// Package sync implements the sync orchestrator: it gate-keeps when
// reconciliation may run, keeps the Strava token fresh, feeds improved
// records into the leadership ledger and assembles a caller-facing result.
package sync

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/runasty/runasty/internal/client"
	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/leadership"
	"github.com/runasty/runasty/internal/metrics"
	"github.com/runasty/runasty/internal/model"
	"github.com/runasty/runasty/internal/records"
	"github.com/runasty/runasty/internal/strava"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// CooldownManual is the minimum gap between two manual syncs for the same
// athlete. Webhook syncs bypass the cooldown; force overrides it.
const CooldownManual = 5 * time.Minute

// Refresh the token when it expires within this window, per Strava's
// recommendation.
const tokenRefreshLookahead = time.Hour

// Status is the overall outcome of one sync invocation.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FailureKind classifies a failed sync for the caller.
type FailureKind string

const (
	FailureAuth     FailureKind = "auth"
	FailureUpstream FailureKind = "upstream"
)

// Options selects how a sync was triggered.
type Options struct {
	// AutoSync marks a webhook-triggered sync: no cooldown, smallest
	// detail-fetch budget.
	AutoSync bool
	// Force bypasses the cooldown (manual "force sync" button).
	Force bool
	// FullSync widens the lookback window to a full year.
	FullSync bool
}

// RecordDelta is one improved personal best reported back to the caller.
type RecordDelta struct {
	Distance    model.Distance `json:"distance"`
	TimeSeconds int64          `json:"time_seconds"`
	AchievedAt  time.Time      `json:"achieved_at"`
	ActivityID  int64          `json:"activity_id"`
}

// Result is the structured outcome of a sync. Message is safe to show to end
// users; Detail carries the underlying error text for logs only.
type Result struct {
	Status             Status
	Failure            FailureKind
	Message            string
	Detail             string
	Records            []RecordDelta
	ActivitiesExamined int
	APICalls           int
	WaitMinutes        int
	LeadershipErrors   int
	PersistErrors      int
}

// Syncer runs syncs against a database. One Syncer serves all athletes.
type Syncer struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Syncer {
	return &Syncer{db: db}
}

// Sync runs one synchronisation for the athlete. It never panics across the
// boundary: every internal failure is folded into the returned Result.
func (s *Syncer) Sync(ctx context.Context, stravaID int64, opts Options) Result {
	result := s.sync(ctx, stravaID, opts)
	metrics.Syncs.WithLabelValues(trigger(opts), string(result.Status)).Inc()
	return result
}

func (s *Syncer) sync(ctx context.Context, stravaID int64, opts Options) Result {
	athlete, err := database.GetAthleteByStravaID(s.db, stravaID)
	if err != nil {
		return failed(FailureUpstream, "Sync failed, please try again later", err)
	}
	if athlete == nil {
		return failed(FailureAuth, "Please log in again", fmt.Errorf("no profile for athlete %d", stravaID))
	}

	// Cooldown applies only to plain manual syncs.
	if !opts.Force && !opts.AutoSync && athlete.LastSyncAt != nil {
		if remaining := CooldownManual - time.Since(*athlete.LastSyncAt); remaining > 0 {
			wait := int(math.Ceil(remaining.Minutes()))
			return Result{
				Status:      StatusSkipped,
				Message:     fmt.Sprintf("Please wait %d minute%s before syncing again", wait, plural(wait)),
				WaitMinutes: wait,
			}
		}
	}

	accessToken, err := s.freshAccessToken(ctx, athlete)
	if err != nil {
		return failed(FailureAuth, "Please log in again", err)
	}

	api := s.apiClient(ctx, accessToken)

	currentTimes, err := database.GetRecordTimes(s.db, stravaID)
	if err != nil {
		return failed(FailureUpstream, "Sync failed, please try again later", err)
	}

	rec, err := records.Reconcile(ctx, api, athlete.LastSyncAt, currentTimes, records.Options{
		AutoSync: opts.AutoSync,
		FullSync: opts.FullSync,
	})
	if err != nil {
		return failed(FailureUpstream, "Could not reach Strava, please try again later", err)
	}

	metrics.StravaAPICalls.Add(float64(rec.APICalls))
	metrics.DetailFetchesSkipped.Add(float64(rec.DetailsSkipped))

	result := Result{
		Status:             StatusSynced,
		ActivitiesExamined: rec.ActivitiesExamined,
		APICalls:           rec.APICalls,
	}

	for _, distance := range model.Distances {
		imp, ok := rec.Improvements[distance]
		if !ok {
			continue
		}

		achievedAt := imp.AchievedAt
		activityID := imp.ActivityID
		written, err := database.SaveImprovedRecord(s.db, &model.Record{
			StravaAthleteID:  stravaID,
			Distance:         distance,
			TimeSeconds:      imp.TimeSeconds,
			AchievedAt:       &achievedAt,
			StravaActivityID: &activityID,
		})
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"athlete": stravaID, "distance": distance}).
				Error("failed to save record")
			result.PersistErrors++
			continue
		}
		if !written {
			continue
		}

		metrics.RecordsImproved.Inc()
		result.Records = append(result.Records, RecordDelta{
			Distance:    distance,
			TimeSeconds: imp.TimeSeconds,
			AchievedAt:  imp.AchievedAt,
			ActivityID:  imp.ActivityID,
		})

		// Leadership bookkeeping is best-effort relative to the record
		// table: a ledger failure is logged, never rolled back into the
		// record write.
		if err := leadership.RecordChange(s.db, distance, stravaID, imp.TimeSeconds); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"athlete": stravaID, "distance": distance}).
				Error("failed to update leadership ledger")
			metrics.LeadershipErrors.Inc()
			result.LeadershipErrors++
		}
	}

	now := time.Now()
	if err := s.db.Model(athlete).Update("last_sync_at", now).Error; err != nil {
		logrus.WithError(err).WithField("athlete", stravaID).Error("failed to stamp last sync")
		result.PersistErrors++
	}

	result.Message = summaryMessage(result.ActivitiesExamined, len(result.Records))
	return result
}

// freshAccessToken returns a usable bearer token, refreshing and persisting
// the stored pair when it expires within the lookahead window.
func (s *Syncer) freshAccessToken(ctx context.Context, athlete *model.Athlete) (string, error) {
	accessToken := athlete.AccessToken

	if athlete.TokenExpiresAt != nil &&
		time.Until(*athlete.TokenExpiresAt) <= tokenRefreshLookahead &&
		athlete.RefreshToken != "" {
		surl, _ := url.Parse(strava.BaseURL)
		tr, err := strava.RefreshToken(ctx, client.NewClient(surl, nil), athlete.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("refreshing token for athlete %d: %w", athlete.StravaAthleteID, err)
		}

		expiresAt := time.Unix(tr.ExpiresAt, 0)
		if err := s.db.Model(athlete).Updates(map[string]interface{}{
			"access_token":     tr.AccessToken,
			"refresh_token":    tr.RefreshToken,
			"token_expires_at": expiresAt,
		}).Error; err != nil {
			return "", fmt.Errorf("persisting refreshed token: %w", err)
		}
		accessToken = tr.AccessToken
	}

	if accessToken == "" {
		return "", fmt.Errorf("no access token for athlete %d", athlete.StravaAthleteID)
	}
	return accessToken, nil
}

func (s *Syncer) apiClient(ctx context.Context, accessToken string) *client.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	tc := oauth2.NewClient(ctx, ts)
	surl, _ := url.Parse(strava.BaseURL)
	return client.NewClient(surl, tc).WithRateLimit(strava.RateLimitRequests, strava.RateLimitWindow)
}

func summaryMessage(examined, improved int) string {
	switch {
	case examined == 0:
		return "No new activities since the last sync"
	case improved == 0:
		return fmt.Sprintf("%d run%s examined, no new records", examined, plural(examined))
	default:
		return fmt.Sprintf("%d record%s improved!", improved, plural(improved))
	}
}

func failed(kind FailureKind, message string, err error) Result {
	logrus.WithError(err).Warn("sync failed")
	return Result{
		Status:  StatusFailed,
		Failure: kind,
		Message: message,
		Detail:  err.Error(),
	}
}

func trigger(opts Options) string {
	switch {
	case opts.AutoSync:
		return "webhook"
	case opts.Force:
		return "forced"
	default:
		return "manual"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

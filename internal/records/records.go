// Package records implements the record reconciliation engine: it turns a
// window of Strava activity history into the set of personal bests that
// improve on what is already stored.
package records

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/runasty/runasty/internal/client"
	"github.com/runasty/runasty/internal/model"
	"github.com/runasty/runasty/internal/strava"
	"github.com/sirupsen/logrus"
)

// EffortDistances maps Strava best-effort labels to tracked distances.
// Matching is exact and case-sensitive: these are Strava's historical names
// and a casing change upstream silently stops matching.
var EffortDistances = map[string]model.Distance{
	"5K":            model.Distance5K,
	"10K":           model.Distance10K,
	"Half-Marathon": model.DistanceHalf,
}

// Detail-fetch caps per sync kind. These exist purely to stay well under
// Strava's rate limits (~100 req/15 min, ~1000/day).
const (
	MaxDetailCallsFirst  = 15
	MaxDetailCallsManual = 10
	MaxDetailCallsAuto   = 3
)

const (
	firstSyncLookback = 90 * 24 * time.Hour
	fullSyncLookback  = 365 * 24 * time.Hour

	perPageFirst       = 100
	perPageIncremental = 50
)

// Options selects the sync strategy.
type Options struct {
	// AutoSync marks a webhook-triggered sync, which gets the smallest
	// detail-fetch budget.
	AutoSync bool
	// FullSync widens the lookback window to a full year.
	FullSync bool
}

// Improvement is a confirmed better time for one distance.
type Improvement struct {
	TimeSeconds int64
	AchievedAt  time.Time
	ActivityID  int64
}

// Result summarises one reconciliation run.
type Result struct {
	Improvements       map[model.Distance]Improvement
	ActivitiesExamined int
	DetailCalls        int
	DetailsSkipped     int
	APICalls           int
}

// MaxDetailCalls returns the detail-fetch cap for this run. First syncs get
// the largest budget so a new athlete's history is covered in one pass.
func MaxDetailCalls(firstSync bool, opts Options) int {
	if firstSync {
		return MaxDetailCallsFirst
	}
	if opts.AutoSync {
		return MaxDetailCallsAuto
	}
	return MaxDetailCallsManual
}

// LookbackAfter returns the unix timestamp activities must postdate. A never
// synced athlete always gets 90 days, an explicit full sync of an already
// synced athlete a year, anything else only what arrived since the last
// successful sync.
func LookbackAfter(lastSyncAt *time.Time, fullSync bool, now time.Time) int64 {
	if lastSyncAt == nil {
		return now.Add(-firstSyncLookback).Unix()
	}
	if fullSync {
		return now.Add(-fullSyncLookback).Unix()
	}
	return lastSyncAt.Unix()
}

// Reconcile fetches the athlete's recent activities and returns the best
// improved time per distance. The currentTimes map holds the stored personal
// bests; a candidate only qualifies if it strictly beats both the stored time
// and the best candidate already found in this run.
//
// A failed detail fetch is skipped, not fatal. A failed activity-list fetch
// is fatal and propagates.
func Reconcile(ctx context.Context, c *client.Client, lastSyncAt *time.Time, currentTimes map[model.Distance]int64, opts Options) (*Result, error) {
	now := time.Now()
	firstSync := lastSyncAt == nil

	perPage := perPageIncremental
	if firstSync {
		perPage = perPageFirst
	}

	after := LookbackAfter(lastSyncAt, opts.FullSync, now)
	activities, listCalls, err := strava.GetActivitiesAfter(ctx, c, after, perPage)
	if err != nil {
		return nil, fmt.Errorf("fetching activity list: %w", err)
	}

	candidates := filterCandidates(activities)
	// Inspect the activities most likely to contain a PR first; the detail
	// loop below is capped.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PRCount > candidates[j].PRCount
	})

	result := &Result{
		Improvements:       make(map[model.Distance]Improvement),
		ActivitiesExamined: len(candidates),
		APICalls:           listCalls,
	}

	maxDetailCalls := MaxDetailCalls(firstSync, opts)

	for _, run := range candidates {
		if result.DetailCalls >= maxDetailCalls {
			break
		}

		detail := strava.GetActivityDetail(ctx, c, run.ID)
		result.DetailCalls++
		result.APICalls++

		if !detail.OK() {
			result.DetailsSkipped++
			logrus.WithFields(logrus.Fields{"activity": run.ID, "reason": detail.Skipped}).
				Debug("skipped activity detail")
			continue
		}

		for _, effort := range detail.Detail.BestEfforts {
			distance, ok := EffortDistances[effort.Name]
			if !ok {
				continue
			}

			stored, hasStored := currentTimes[distance]
			if hasStored && effort.ElapsedTime >= stored {
				continue
			}
			if best, found := result.Improvements[distance]; found && effort.ElapsedTime >= best.TimeSeconds {
				continue
			}

			result.Improvements[distance] = Improvement{
				TimeSeconds: effort.ElapsedTime,
				AchievedAt:  effort.StartDate,
				ActivityID:  run.ID,
			}
		}
	}

	return result, nil
}

// filterCandidates keeps running activities that plausibly contain a PR:
// the source flagged achievements, or the run is at least as long as the
// shortest target distance so an unflagged long run is not discarded.
func filterCandidates(activities []strava.SummaryActivity) []strava.SummaryActivity {
	var runs []strava.SummaryActivity
	for _, a := range activities {
		if a.Type != "Run" && a.SportType != "Run" {
			continue
		}
		if a.AchievementCount > 0 || a.PRCount > 0 || a.Distance >= model.Distance5K.Meters() {
			runs = append(runs, a)
		}
	}
	return runs
}

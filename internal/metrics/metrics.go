// Package metrics exposes Runasty's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Syncs counts sync invocations by trigger (manual, forced, webhook)
	// and outcome (synced, skipped, failed).
	Syncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runasty_syncs_total",
		Help: "Sync invocations by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	// StravaAPICalls counts requests made against the Strava API, the budget
	// the detail-fetch caps protect.
	StravaAPICalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runasty_strava_api_calls_total",
		Help: "Requests made to the Strava API.",
	})

	// DetailFetchesSkipped counts per-activity detail fetches that failed or
	// timed out and were skipped.
	DetailFetchesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runasty_detail_fetches_skipped_total",
		Help: "Activity detail fetches skipped due to errors or timeouts.",
	})

	// RecordsImproved counts personal-best rows written.
	RecordsImproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runasty_records_improved_total",
		Help: "Personal best records created or improved.",
	})

	// LeadershipErrors counts ledger updates that failed and were logged
	// without aborting the sync.
	LeadershipErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runasty_leadership_errors_total",
		Help: "Leadership ledger updates that failed.",
	})
)

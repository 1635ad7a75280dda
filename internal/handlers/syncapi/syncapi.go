// Package syncapi implements the manual sync endpoint behind the "force
// sync" button. A cooldown skip is a success, not an error.
package syncapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/sessions"
	runsync "github.com/runasty/runasty/internal/sync"
)

type syncRequest struct {
	Force    bool `json:"force"`
	FullSync bool `json:"fullSync"`
}

func SyncHandler(w http.ResponseWriter, r *http.Request) {
	stravaID, ok := sessions.CurrentAthleteID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Please log in again"})
		return
	}

	// Body is optional; an empty or invalid body means a plain manual sync.
	var req syncRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
	}

	db, err := database.InitDB()
	if err != nil {
		slog.Error("unable to connect to database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Sync failed, please try again later"})
		return
	}

	result := runsync.New(db).Sync(r.Context(), stravaID, runsync.Options{
		Force:    req.Force,
		FullSync: req.FullSync,
	})

	switch result.Status {
	case runsync.StatusSkipped:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     result.Message,
			"skipped":     true,
			"waitMinutes": result.WaitMinutes,
			"apiCalls":    result.APICalls,
		})
	case runsync.StatusFailed:
		slog.Error("sync failed", "athlete", stravaID, "kind", string(result.Failure), "detail", result.Detail)
		status := http.StatusBadRequest
		if result.Failure == runsync.FailureAuth {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]any{
			"error":    result.Message,
			"apiCalls": result.APICalls,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":            result.Message,
			"records":            result.Records,
			"activitiesExamined": result.ActivitiesExamined,
			"apiCalls":           result.APICalls,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding sync response", "error", err)
	}
}

// Package webhook implements the handler for Strava push events. Activity
// create/update events trigger a sync for the owning athlete; everything
// else is acknowledged without action. We always answer 200 so Strava does
// not retry.
package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/runasty/runasty/internal/cache"
	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/strava"
	runsync "github.com/runasty/runasty/internal/sync"
)

const dedupTTL = 24 * time.Hour

func EventHandler(w http.ResponseWriter, r *http.Request) {
	var event strava.WebhookEvent
	if r.Body == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &event); err != nil {
		log.Println("[ERROR] unable to unmarshal webhook event:", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !event.TriggersSync() {
		log.Printf("[INFO] ignoring %s/%s event", event.ObjectType, event.AspectType)
		acknowledge(w, false)
		return
	}

	// Dedup repeat deliveries of the same activity. Redis being down only
	// disables dedup; the event is still processed.
	dedupKey := fmt.Sprintf("last_activity:%d", event.OwnerID)
	che, err := cache.NewRedisCache(r.Context(), os.Getenv("REDIS_URL"))
	if err != nil {
		log.Println("[ERROR] unable to create redis cache:", err)
		che = nil
	}
	if che != nil {
		last, _ := che.Get(r.Context(), dedupKey)
		if last == strconv.FormatInt(event.ObjectID, 10) && os.Getenv("DEBUG") != "1" {
			log.Println("[INFO] ignoring repeat event for activity", event.ObjectID)
			acknowledge(w, false)
			return
		}
	}

	db, err := database.InitDB()
	if err != nil {
		log.Println("[ERROR] unable to connect to database:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	athlete, err := database.GetAthleteByStravaID(db, event.OwnerID)
	if err != nil {
		log.Println("[ERROR] unable to look up athlete:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if athlete == nil {
		// Not one of our users; nothing to do.
		acknowledge(w, false)
		return
	}

	result := runsync.New(db).Sync(r.Context(), event.OwnerID, runsync.Options{AutoSync: true})
	log.Printf("[INFO] webhook sync for athlete %d: %s (%s)", event.OwnerID, result.Message, result.Status)

	if che != nil && result.Status == runsync.StatusSynced {
		if err := che.Set(r.Context(), dedupKey, strconv.FormatInt(event.ObjectID, 10), dedupTTL); err != nil {
			log.Println("[ERROR] unable to store dedup key:", err)
		}
	}

	acknowledge(w, result.Status == runsync.StatusSynced)
}

func acknowledge(w http.ResponseWriter, synced bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]bool{"received": true, "synced": synced}); err != nil {
		log.Println("[ERROR]", err)
	}
}

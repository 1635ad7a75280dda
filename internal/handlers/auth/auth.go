// Package auth implements the Strava OAuth login handler.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/model"
	"github.com/runasty/runasty/internal/sessions"
	"github.com/runasty/runasty/internal/strava"
	runsync "github.com/runasty/runasty/internal/sync"
)

func AuthHandler(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		slog.Error("unable to parse form", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	state := r.Form.Get("state")
	stateToken := os.Getenv("STATE_TOKEN")

	if state == "" {
		u := strava.OauthConfig.AuthCodeURL(stateToken)
		slog.Info("redirecting to strava auth", "url", u)
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	if state != stateToken {
		http.Error(w, "state invalid", http.StatusBadRequest)
		return
	}
	code := r.Form.Get("code")
	if code == "" {
		http.Error(w, "code not found", http.StatusBadRequest)
		return
	}
	token, err := strava.OauthConfig.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("token exchange failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	profile, ok := token.Extra("athlete").(map[string]any)
	if !ok {
		slog.Error("unable to get athlete info")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	db, err := database.InitDB()
	if err != nil {
		slog.Error("unable to connect to database", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	athlete := athleteFromToken(profile, token.AccessToken, token.RefreshToken, token.Expiry)
	if athlete.StravaAthleteID == 0 {
		slog.Error("athlete info has no id")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	existing, err := database.GetAthleteByStravaID(db, athlete.StravaAthleteID)
	if err != nil {
		slog.Error("unable to look up athlete", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := database.UpsertAthlete(db, athlete); err != nil {
		slog.Error("unable to store athlete", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := sessions.SignInAthlete(r, w, athlete.StravaAthleteID); err != nil {
		slog.Error("unable to save session", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	slog.Info("successfully authenticated", "username", athlete.Username)

	// Make sure we receive activity events for this app.
	if ok, err := Subscribe(r.Context()); !ok && err != nil {
		slog.Error("failed to subscribe to strava webhook", "error", err)
	}

	// Kick off the athlete's first sync in the background so the ranking
	// page fills in without them pressing anything.
	if existing == nil {
		go func(stravaID int64) {
			res := runsync.New(db).Sync(context.Background(), stravaID, runsync.Options{})
			slog.Info("first sync finished", "athlete", stravaID, "status", string(res.Status), "message", res.Message)
		}(athlete.StravaAthleteID)
	}

	http.Redirect(w, r, "/ranking", http.StatusFound)
}

// athleteFromToken builds a profile row from the athlete summary Strava
// attaches to the token exchange response.
func athleteFromToken(profile map[string]any, accessToken, refreshToken string, expiry time.Time) *model.Athlete {
	athlete := &model.Athlete{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if !expiry.IsZero() {
		athlete.TokenExpiresAt = &expiry
	}

	if id, ok := profile["id"].(float64); ok {
		athlete.StravaAthleteID = int64(id)
	}
	if username, ok := profile["username"].(string); ok {
		athlete.Username = username
	}
	first, _ := profile["firstname"].(string)
	last, _ := profile["lastname"].(string)
	switch {
	case first != "" && last != "":
		athlete.FullName = first + " " + last
	case first != "":
		athlete.FullName = first
	}
	if sex, ok := profile["sex"].(string); ok && sex != "" {
		athlete.Sex = &sex
	}
	if avatar, ok := profile["profile_medium"].(string); ok && avatar != "" {
		athlete.AvatarURL = avatar
	} else if avatar, ok := profile["profile"].(string); ok {
		athlete.AvatarURL = avatar
	}

	raw, err := json.Marshal(profile)
	if err == nil {
		athlete.RawProfile.Set(raw) //nolint:errcheck // an unset raw profile is not fatal
	}

	return athlete
}

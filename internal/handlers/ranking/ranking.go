// Package ranking renders the public leaderboard pages: the top times per
// distance and the current leader with how long they have been on top.
package ranking

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/leadership"
	"github.com/runasty/runasty/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

const leaderboardSize = 50

var titleCaser = cases.Title(language.Und)

// Entry is one leaderboard row ready for rendering.
type Entry struct {
	Position    int
	DisplayName string
	AvatarURL   string
	Sex         string
	Time        string
	AchievedAt  string
}

// Leader describes the current open leadership interval for the page.
type Leader struct {
	DisplayName  string
	AvatarURL    string
	Time         string
	LeadingSince string
}

// Page is the data handed to the ranking template.
type Page struct {
	Distance  model.Distance
	Distances []model.Distance
	Gender    string
	Entries   []Entry
	Leader    *Leader
}

func RankingHandler(w http.ResponseWriter, r *http.Request) {
	db, err := database.InitDB()
	if err != nil {
		log.Println("[ERROR] unable to connect to database:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	distance := parseDistance(r.URL.Query().Get("distance"))
	gender := parseGender(r.URL.Query().Get("gender"))

	page, err := buildPage(db, distance, gender)
	if err != nil {
		log.Println("[ERROR] unable to build ranking page:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	out, err := execTemplate("ranking.html", page)
	if err != nil {
		log.Println("[ERROR] unable to render ranking page:", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(out)); err != nil {
		log.Println("[ERROR]", err)
	}
}

func buildPage(db *gorm.DB, distance model.Distance, gender string) (*Page, error) {
	rows, err := database.GetLeaderboard(db, distance, gender, leaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}

	page := &Page{
		Distance:  distance,
		Distances: model.Distances,
		Gender:    gender,
	}

	for i, row := range rows {
		entry := Entry{
			Position:    i + 1,
			DisplayName: displayName(row.FullName, row.Username),
			AvatarURL:   row.AvatarURL,
			Time:        FormatTime(row.TimeSeconds),
		}
		if row.Sex != nil {
			entry.Sex = *row.Sex
		}
		if row.AchievedAt != nil {
			entry.AchievedAt = *row.AchievedAt
		}
		page.Entries = append(page.Entries, entry)
	}

	// The leader strip only exists for the overall ranking; filtered views
	// show the table alone.
	if gender == "" {
		interval, err := database.GetOpenInterval(db, distance, leadership.Overall)
		if err != nil {
			return nil, fmt.Errorf("loading current leader: %w", err)
		}
		if interval != nil {
			athlete, err := database.GetAthleteByStravaID(db, interval.StravaAthleteID)
			if err != nil {
				return nil, fmt.Errorf("loading leader profile: %w", err)
			}
			if athlete != nil {
				page.Leader = &Leader{
					DisplayName:  displayName(athlete.FullName, athlete.Username),
					AvatarURL:    athlete.AvatarURL,
					Time:         FormatTime(interval.RecordTimeSeconds),
					LeadingSince: FormatDurationSince(interval.StartedAt, time.Now()),
				}
			}
		}
	}

	return page, nil
}

func parseDistance(raw string) model.Distance {
	for _, d := range model.Distances {
		if raw == string(d) {
			return d
		}
	}
	return model.Distance5K
}

func parseGender(raw string) string {
	if raw == "M" || raw == "F" {
		return raw
	}
	return ""
}

func displayName(fullName, username string) string {
	if fullName != "" {
		return titleCaser.String(fullName)
	}
	if username != "" {
		return username
	}
	return "Anonymous runner"
}

// FormatTime renders whole seconds as m:ss or h:mm:ss.
func FormatTime(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatDurationSince renders how long a leader has been on top.
func FormatDurationSince(start, now time.Time) string {
	d := now.Sub(start)
	switch {
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins < 1 {
			mins = 1
		}
		return fmt.Sprintf("%d minute%s", mins, plural(mins))
	case d < 24*time.Hour:
		hours := int(d.Hours())
		return fmt.Sprintf("%d hour%s", hours, plural(hours))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d day%s", days, plural(days))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func execTemplate(tmpl string, data interface{}) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Test and dev/prod use different paths
	templatePath := filepath.Join(wd, "templates", tmpl)
	if os.Getenv("ENV") == "test" {
		templatePath = filepath.Join(wd, "..", "..", "..", "templates", tmpl)
	}

	t, err := template.ParseFiles(templatePath)
	if err != nil {
		return "", err
	}

	var tpl bytes.Buffer
	err = t.Execute(&tpl, data)
	if err != nil {
		return "", err
	}

	return tpl.String(), nil
}

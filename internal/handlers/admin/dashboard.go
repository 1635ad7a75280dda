package admin

import (
	"html/template"
	"log"
	"net/http"

	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/model"
	"gorm.io/gorm"
)

// Define custom template functions
var funcMap = template.FuncMap{
	"distances": func() []model.Distance {
		return model.Distances
	},
}

// Parse templates with custom functions - make this the single source
var templates = template.Must(template.New("").Funcs(funcMap).ParseGlob("templates/admin/*.html"))

// athleteRow is an athlete with their token material redacted for display.
type athleteRow struct {
	StravaAthleteID int64
	Username        string
	FullName        string
	Sex             string
	TokenExpiresAt  string
	LastSyncAt      string
}

// ShowDashboard displays the admin dashboard with athletes, records and
// leadership history.
func ShowDashboard(gormDB *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		athletes, err := database.GetAllAthletes(gormDB)
		if err != nil {
			log.Printf("Error getting athletes: %v", err)
			http.Error(w, "Failed to load athletes", http.StatusInternalServerError)
			return
		}

		rows := make([]athleteRow, 0, len(athletes))
		for _, a := range athletes {
			row := athleteRow{
				StravaAthleteID: a.StravaAthleteID,
				Username:        a.Username,
				FullName:        a.FullName,
			}
			if a.Sex != nil {
				row.Sex = *a.Sex
			}
			if a.TokenExpiresAt != nil {
				row.TokenExpiresAt = a.TokenExpiresAt.Format("2006-01-02 15:04")
			}
			if a.LastSyncAt != nil {
				row.LastSyncAt = a.LastSyncAt.Format("2006-01-02 15:04")
			}
			rows = append(rows, row)
		}

		history := make(map[model.Distance][]model.LeadershipInterval, len(model.Distances))
		for _, d := range model.Distances {
			intervals, err := database.GetLeadershipHistory(gormDB, d)
			if err != nil {
				log.Printf("Error getting leadership history for %s: %v", d, err)
				http.Error(w, "Failed to load leadership history", http.StatusInternalServerError)
				return
			}
			history[d] = intervals
		}

		data := map[string]interface{}{
			"Athletes": rows,
			"History":  history,
			"Success":  r.URL.Query().Get("success"),
			"Error":    r.URL.Query().Get("error"),
		}

		// Use the base name of the template file for execution
		err = templates.ExecuteTemplate(w, "dashboard.html", data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

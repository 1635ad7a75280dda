package sessions

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/sessions"
)

var store *sessions.CookieStore

func init() {
	key := os.Getenv("SESSION_KEY")
	if key == "" {
		log.Println("[WARN] SESSION_KEY not set, using an insecure default")
		key = "insecure-dev-session-key"
	}
	store = sessions.NewCookieStore([]byte(key))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 30, // 30 days
		HttpOnly: true,
		Secure:   os.Getenv("ENV") != "dev", // Use secure cookies in production
		SameSite: http.SameSiteLaxMode,
	}
}

// GetSession retrieves the Runasty session from the request.
func GetSession(r *http.Request) (*sessions.Session, error) {
	return store.Get(r, "runasty-session")
}

// SaveSession saves the session.
func SaveSession(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	return store.Save(r, w, session)
}

// SignInAthlete records the athlete's Strava id in the session.
func SignInAthlete(r *http.Request, w http.ResponseWriter, stravaID int64) error {
	session, err := GetSession(r)
	if err != nil {
		return err
	}
	session.Values["strava_id"] = stravaID
	return SaveSession(r, w, session)
}

// CurrentAthleteID returns the logged-in athlete's Strava id, if any.
func CurrentAthleteID(r *http.Request) (int64, bool) {
	session, err := GetSession(r)
	if err != nil {
		return 0, false
	}
	id, ok := session.Values["strava_id"].(int64)
	return id, ok
}

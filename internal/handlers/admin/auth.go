package admin

import (
	"log"
	"net/http"
	"os"

	"github.com/runasty/runasty/internal/auth"
	"github.com/runasty/runasty/internal/sessions"
)

// ShowLoginForm displays the admin login page.
func ShowLoginForm(w http.ResponseWriter, r *http.Request) {
	// Use the templates variable defined in dashboard.go
	err := templates.ExecuteTemplate(w, "login.html", nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleLogin processes the admin login attempt. Credentials come from the
// ADMIN_USERNAME and ADMIN_PASSWORD_HASH environment variables.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	wantUser := os.Getenv("ADMIN_USERNAME")
	wantHash := os.Getenv("ADMIN_PASSWORD_HASH")

	if wantUser == "" || wantHash == "" || username != wantUser || !auth.CheckPasswordHash(password, wantHash) {
		log.Printf("Login failed for user: %s", username)
		// Use the templates variable defined in dashboard.go
		err := templates.ExecuteTemplate(w, "login.html", map[string]string{"Error": "Invalid credentials"})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// Authentication successful
	session, err := sessions.GetSession(r)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	session.Values["admin"] = true
	session.Values["admin_username"] = username
	if err := sessions.SaveSession(r, w, session); err != nil {
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/admin", http.StatusFound)
}

// HandleLogout logs the admin user out.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, err := sessions.GetSession(r)
	if err != nil {
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	// Clear session values
	delete(session.Values, "admin")
	delete(session.Values, "admin_username")
	session.Options.MaxAge = -1 // Expire cookie immediately

	if err := sessions.SaveSession(r, w, session); err != nil {
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/admin/login", http.StatusFound)
}

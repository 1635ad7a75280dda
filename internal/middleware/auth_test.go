package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/runasty/runasty/internal/sessions"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAthlete(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sync", http.NoBody)
		rr := httptest.NewRecorder()
		RequireAthlete(okHandler()).ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("signed in", func(t *testing.T) {
		seed := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		rec := httptest.NewRecorder()
		if err := sessions.SignInAthlete(seed, rec, 134815); err != nil {
			t.Fatalf("failed to sign in: %s", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/sync", http.NoBody)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		RequireAthlete(okHandler()).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	t.Run("no session redirects to login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
		rr := httptest.NewRecorder()
		RequireAdmin(okHandler()).ServeHTTP(rr, req)

		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "/admin/login" {
			t.Errorf("expected redirect to /admin/login, got %q", loc)
		}
	})

	t.Run("athlete session is not admin", func(t *testing.T) {
		seed := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		rec := httptest.NewRecorder()
		if err := sessions.SignInAthlete(seed, rec, 134815); err != nil {
			t.Fatalf("failed to sign in: %s", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		RequireAdmin(okHandler()).ServeHTTP(rr, req)

		if rr.Code != http.StatusFound {
			t.Errorf("expected 302, got %d", rr.Code)
		}
	})

	t.Run("admin session", func(t *testing.T) {
		seed := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		rec := httptest.NewRecorder()
		session, err := sessions.GetSession(seed)
		if err != nil {
			t.Fatalf("failed to get session: %s", err)
		}
		session.Values["admin"] = true
		if err := sessions.SaveSession(seed, rec, session); err != nil {
			t.Fatalf("failed to save session: %s", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		RequireAdmin(okHandler()).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})
}

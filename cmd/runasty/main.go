package main

import (
	"log"
	"net/http"
	"os"

	// Autoloads .env file to supply environment variables
	_ "github.com/joho/godotenv/autoload"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/runasty/runasty/internal/database"
	"github.com/runasty/runasty/internal/handlers/admin"
	"github.com/runasty/runasty/internal/handlers/auth"
	"github.com/runasty/runasty/internal/handlers/callback"
	"github.com/runasty/runasty/internal/handlers/ranking"
	"github.com/runasty/runasty/internal/handlers/syncapi"
	"github.com/runasty/runasty/internal/handlers/webhook"
	"github.com/runasty/runasty/internal/logger"
	"github.com/runasty/runasty/internal/middleware"
)

func main() {
	logger.Setup()

	port := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		port = ":" + val
	}

	db, err := database.InitDB()
	if err != nil {
		log.Fatal("unable to connect to database: ", err)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", indexHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth", auth.AuthHandler)
	r.HandleFunc("/webhook", callback.CallbackHandler).Methods(http.MethodGet)
	r.HandleFunc("/webhook", webhook.EventHandler).Methods(http.MethodPost)
	r.HandleFunc("/ranking", ranking.RankingHandler).Methods(http.MethodGet)
	r.Handle("/api/sync", middleware.RequireAthlete(http.HandlerFunc(syncapi.SyncHandler))).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/admin/login", admin.ShowLoginForm).Methods(http.MethodGet)
	r.HandleFunc("/admin/login", admin.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", admin.HandleLogout)
	r.Handle("/admin", middleware.RequireAdmin(admin.ShowDashboard(db))).Methods(http.MethodGet)

	handler := handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, r))

	log.Println("Starting server on port", port)
	log.Fatal(http.ListenAndServe(port, handler)) //#nosec: G114
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("Runasty")); err != nil {
		log.Println(err)
	}
}

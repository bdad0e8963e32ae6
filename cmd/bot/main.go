package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redditmod/modbot/internal/app"
	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/moderation"
	"github.com/redditmod/modbot/internal/scheduler"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting moderation bot")
	if cfg.DryRun {
		logrus.Warn("Dry run enabled, no moderation actions will be sent")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bot, err := app.Build(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer bot.Close(context.Background())

	schedulerService := scheduler.NewService(cfg, bot.Moderation)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      newRouter(ctx, bot.Moderation),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

// Moderator is the part of the moderation service the HTTP endpoints use
type Moderator interface {
	scheduler.Runner
	GetMetrics() string
	LatestReport(ctx context.Context) (*models.RunReport, error)
}

func newRouter(ctx context.Context, m Moderator) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/status", statusHandler(m)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/runs/latest", latestRunHandler(m)).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(ctx, m)).Methods("POST")

	return router
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []byte(`{"status":"healthy","timestamp":"`+time.Now().Format(time.RFC3339)+`"}`))
}

func statusHandler(m Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []byte(m.GetMetrics()))
	}
}

func latestRunHandler(m Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := m.LatestReport(r.Context())
		if err != nil {
			logrus.Errorf("Failed to load latest run report: %v", err)
			writeJSON(w, http.StatusInternalServerError, []byte(`{"error":"failed to load latest run report"}`))
			return
		}
		if report == nil {
			writeJSON(w, http.StatusNotFound, []byte(`{"error":"no run recorded yet"}`))
			return
		}

		data, err := json.Marshal(report)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, []byte(`{"error":"failed to encode run report"}`))
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func triggerHandler(ctx context.Context, m Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := make(chan error, 1)
		go func() {
			_, err := m.RunModeration(ctx)
			if errors.Is(err, moderation.ErrRunInProgress) {
				started <- err
				return
			}
			started <- nil
			if err != nil {
				logrus.Errorf("Manual moderation trigger failed: %v", err)
			}
		}()

		select {
		case err := <-started:
			if err != nil {
				writeJSON(w, http.StatusConflict, []byte(`{"error":"a moderation run is already in progress"}`))
				return
			}
		case <-time.After(100 * time.Millisecond):
		}

		writeJSON(w, http.StatusAccepted, []byte(`{"message":"Moderation run triggered"}`))
	}
}

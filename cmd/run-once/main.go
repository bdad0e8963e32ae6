package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redditmod/modbot/internal/app"
	"github.com/redditmod/modbot/internal/config"
	"github.com/sirupsen/logrus"
)

// run-once performs a single moderation pass for external schedulers and
// prints the run report. It exits non-zero when the run fails.
func main() {
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bot, err := app.Build(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer bot.Close(context.Background())

	report, err := bot.Moderation.RunModeration(ctx)
	if err != nil {
		logrus.Errorf("Moderation run failed: %v", err)
		bot.Close(context.Background())
		os.Exit(1)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logrus.Fatalf("Failed to encode run report: %v", err)
	}
	fmt.Println(string(data))
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/notifications"
	"github.com/redditmod/modbot/internal/storage"
)

const outputDir = "test_output"

// fileStorage keeps archived reports in a local directory
type fileStorage struct{}

func (f *fileStorage) Store(ctx context.Context, name string, data []byte) error {
	path := filepath.Join(outputDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (f *fileStorage) Retrieve(ctx context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(outputDir, name))
}

func (f *fileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, prefix+"*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(outputDir, m)
		if err != nil {
			return nil, err
		}
		names = append(names, filepath.ToSlash(rel))
	}
	sort.Strings(names)
	return names, nil
}

func (f *fileStorage) Delete(ctx context.Context, name string) error {
	return os.Remove(filepath.Join(outputDir, name))
}

func sampleReport() *models.RunReport {
	return &models.RunReport{
		StartedAt:      time.Now().UTC().Add(-2 * time.Minute),
		Duration:       (97 * time.Second).String(),
		TotalActions:   9,
		ModmailReplies: 1,
		Communities: []models.CommunityRun{
			{
				Community:    "pics",
				ItemsScanned: map[string]int{"reports": 4, "spam": 12, "submissions": 87, "comments": 0},
				Actions:      map[string]int{"remove": 5, "approve": 2},
				Reapprovals:  1,
			},
			{
				Community:    "aww",
				ItemsScanned: map[string]int{"reports": 2, "spam": 3},
				Actions:      map[string]int{"alert": 1},
			},
			{
				Community:    "funny",
				ItemsScanned: map[string]int{"reports": 1},
				Actions:      map[string]int{},
				Error:        "failed to scan spam: reddit returned 503",
			},
		},
	}
}

// test-report archives a sample run report locally and sends it through the
// configured notification channels
func main() {
	fmt.Println("🤖 Moderation Bot - Test Report Generator")
	fmt.Println("==========================================")

	_ = godotenv.Load()

	smtpPort, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	cfg := &config.Config{
		TeamsWebhookURL:   os.Getenv("TEAMS_WEBHOOK_URL"),
		NotificationEmail: os.Getenv("NOTIFICATION_EMAIL"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          smtpPort,
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report := sampleReport()
	archive := storage.NewArchive(&fileStorage{}, 7*24*time.Hour)

	name, err := archive.Save(ctx, report)
	if err != nil {
		fmt.Printf("❌ Error archiving report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n💾 Report saved to: %s\n", filepath.Join(outputDir, name))

	data, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println(string(data))
	fmt.Println(strings.Repeat("=", 70))

	service := notifications.NewService(cfg)
	if !service.Enabled() {
		fmt.Println("\n⚠️  No TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL configured, skipping delivery")
		return
	}

	if err := service.SendRunReport(ctx, report); err != nil {
		fmt.Printf("❌ Error sending report: %v\n", err)
		os.Exit(1)
	}
	if err := service.SendAlert(ctx, &models.Alert{
		Community: "aww",
		Title:     "Reported Item Alert",
		Message:   "The following item has received a large number of reports, please investigate:\n\nhttps://www.reddit.com/r/aww/comments/abc123/",
		Permalink: "https://www.reddit.com/r/aww/comments/abc123/",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		fmt.Printf("❌ Error sending alert: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Test report and alert delivered!")
}

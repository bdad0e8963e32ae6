package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/redditmod/modbot/internal/reddit"
)

// test-apis checks the Reddit credentials and read access to every enabled
// community without performing any moderation action
func main() {
	fmt.Println("🔍 Moderation Bot - API Connectivity Test")
	fmt.Println("==========================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := reddit.NewClient(reddit.Credentials{
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		UserAgent:    cfg.RedditUserAgent,
	})

	fmt.Printf("🔸 Authenticating as /u/%s... ", client.Username())
	if err := client.Authenticate(ctx); err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Println("✅ SUCCESS")

	store, err := persistence.New(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.DatabaseDriver, err)
	}
	defer store.Close(ctx)

	communities, err := store.ListEnabledCommunities(ctx)
	if err != nil {
		log.Fatalf("Failed to list communities: %v", err)
	}
	if len(communities) == 0 {
		fmt.Println("⚠️  No enabled communities, import a rules file first")
		return
	}

	fmt.Println("\n📡 Testing Community Listings...")
	fmt.Println(strings.Repeat("-", 40))

	for _, c := range communities {
		fmt.Printf("\n/r/%s\n", c.Name)
		for _, stream := range models.Streams {
			testListing(ctx, string(stream), client.Stream(c.Name, stream, 1))
		}
		testListing(ctx, "modqueue", client.PendingQueue(c.Name, 1))

		fmt.Printf("   🔸 report listing... ")
		reported, err := client.ReportListing(ctx, c.Name)
		if err != nil {
			fmt.Printf("❌ ERROR: %v\n", err)
			continue
		}
		fmt.Printf("✅ %d reported items\n", len(reported))
	}

	fmt.Println("\n✅ API connectivity test completed!")
}

func testListing(ctx context.Context, name string, items reddit.Iterator[*models.Item]) {
	fmt.Printf("   🔸 %s... ", name)

	item, err := items.Next(ctx)
	switch {
	case errors.Is(err, models.ErrEndOfStream):
		fmt.Println("✅ empty")
	case err != nil:
		fmt.Printf("❌ ERROR: %v\n", err)
	default:
		fmt.Printf("✅ newest %s by %s at %s\n", item.Fullname(), item.Author, item.CreatedAt.Format(time.RFC3339))
	}
}

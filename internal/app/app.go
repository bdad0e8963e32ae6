package app

import (
	"context"
	"fmt"

	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/meme"
	"github.com/redditmod/modbot/internal/moderation"
	"github.com/redditmod/modbot/internal/notifications"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/redditmod/modbot/internal/reddit"
	"github.com/redditmod/modbot/internal/rules"
	"github.com/redditmod/modbot/internal/storage"
	"github.com/sirupsen/logrus"
)

// App holds the long-lived collaborators of the bot
type App struct {
	Config     *config.Config
	Store      persistence.Persistence
	Archive    *storage.Archive
	Moderation *moderation.Service
}

// Build opens the store and wires every service from cfg
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := persistence.New(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.DatabaseDriver, err)
	}

	a, err := build(ctx, cfg, store)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, store persistence.Persistence) (*App, error) {
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	if cfg.RulesFile != "" {
		if err := ImportRules(ctx, store, cfg.RulesFile); err != nil {
			return nil, err
		}
	}

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var notifier notifications.NotificationInterface
	if n := notifications.NewService(cfg); n.Enabled() {
		notifier = n
	} else {
		logrus.Info("No notification channel configured")
	}

	client := reddit.NewClient(reddit.Credentials{
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		UserAgent:    cfg.RedditUserAgent,
	})

	service := moderation.NewService(cfg, moderation.Dependencies{
		Store:         store,
		Platform:      client,
		Memes:         meme.NewResolver(cfg.MemeCacheTTL),
		Archive:       archive,
		Notifications: notifier,
	})

	return &App{
		Config:     cfg,
		Store:      store,
		Archive:    archive,
		Moderation: service,
	}, nil
}

// newArchive keeps run reports in Azure when an account is configured and in
// memory otherwise
func newArchive(ctx context.Context, cfg *config.Config) (*storage.Archive, error) {
	if cfg.StorageAccount == "" {
		logrus.Info("AZURE_STORAGE_ACCOUNT not set, keeping run reports in memory")
		return storage.NewArchive(storage.NewMemoryStorage(), cfg.ArchiveRetention), nil
	}

	blobs, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage.NewArchive(blobs, cfg.ArchiveRetention), nil
}

// ImportRules loads the rules file at path into store
func ImportRules(ctx context.Context, store persistence.Persistence, path string) error {
	validate, err := rules.NewValidator()
	if err != nil {
		return err
	}

	f, err := rules.Load(ctx, path, validate)
	if err != nil {
		return err
	}

	applied, err := rules.Apply(ctx, store, f)
	if err != nil {
		return err
	}

	logrus.Infof("Imported rules for %d communities from %s", len(applied), path)
	return nil
}

// Close releases the store
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}

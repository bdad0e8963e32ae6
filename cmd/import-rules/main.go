package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redditmod/modbot/internal/app"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/redditmod/modbot/internal/rules"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func rulesFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "path of the YAML rules file",
		Sources:  cli.EnvVars("RULES_FILE"),
		Required: true,
	}
}

func buildCLI() *cli.Command {
	return &cli.Command{
		Name:  "import-rules",
		Usage: "manage the communities and rule trees the bot moderates with",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "check a rules file without touching the database",
				Flags: []cli.Flag{rulesFileFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					f, err := loadRules(ctx, cmd.String("file"))
					if err != nil {
						return err
					}
					for _, c := range f.Communities {
						conds, err := rules.Flatten(c.Rules)
						if err != nil {
							return fmt.Errorf("community %s: %w", c.Name, err)
						}
						fmt.Printf("/r/%s: %d conditions\n", c.Name, len(conds))
					}
					return nil
				},
			},
			{
				Name:  "apply",
				Usage: "write the communities and rule trees of a rules file to the database",
				Flags: []cli.Flag{
					rulesFileFlag(),
					&cli.StringFlag{
						Name:    "driver",
						Usage:   "database driver (postgres, mysql, sqlite)",
						Value:   "postgres",
						Sources: cli.EnvVars("DATABASE_DRIVER"),
					},
					&cli.StringFlag{
						Name:     "dsn",
						Usage:    "database connection string",
						Sources:  cli.EnvVars("DATABASE_DSN"),
						Required: true,
					},
				},
				Action: apply,
			},
		},
	}
}

func loadRules(ctx context.Context, path string) (*rules.File, error) {
	validate, err := rules.NewValidator()
	if err != nil {
		return nil, err
	}
	return rules.Load(ctx, path, validate)
}

func apply(ctx context.Context, cmd *cli.Command) error {
	driver := cmd.String("driver")
	if driver == "memory" {
		return fmt.Errorf("the memory driver cannot persist imported rules")
	}

	store, err := persistence.New(ctx, driver, cmd.String("dsn"))
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	defer func() {
		_ = store.Close(ctx)
	}()

	if err = store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	return app.ImportRules(ctx, store, cmd.String("file"))
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	if err := buildCLI().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

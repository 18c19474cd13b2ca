package main

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/barangay-tools/bantay/pkg/alert"
	"github.com/barangay-tools/bantay/pkg/backend"
	"github.com/barangay-tools/bantay/pkg/recon"
	"github.com/barangay-tools/bantay/pkg/seenstore"
)

func main() {
	app := cli.App{
		Name:    "feedcheck",
		Usage:   "one-shot notification feed check",
		Version: "0.0.1",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "backend-url",
			Usage:   "base URL of the barangay backend REST API",
			Value:   "http://localhost:3000",
			EnvVars: []string{"BANTAY_BACKEND_URL"},
		},
		&cli.StringFlag{
			Name:     "username",
			Usage:    "username to reconcile notifications for",
			Required: true,
			EnvVars:  []string{"BANTAY_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "role",
			Usage:   "role of the user (tanod or resident)",
			Value:   "tanod",
			EnvVars: []string{"BANTAY_ROLE"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "path to data directory",
			Value:   "./data/bantay",
			EnvVars: []string{"BANTAY_DATA_DIR"},
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the feed as JSON instead of text",
		},
	}

	app.Action = FeedCheck

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func FeedCheck(cctx *cli.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	caps, err := recon.RoleCapabilities(cctx.String("role"))
	if err != nil {
		return err
	}

	dataDir := cctx.String("data-dir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := seenstore.Open(logger, filepath.Join(dataDir, "bantay.db"))
	if err != nil {
		return fmt.Errorf("failed to open seen store: %w", err)
	}

	client, err := backend.NewClient(logger, cctx.String("backend-url"), 10)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	engine := recon.NewEngine(
		logger,
		client,
		client,
		store,
		alert.NewLogAlerter(logger),
		nil,
		cctx.String("username"),
		caps,
	)

	if err := engine.ReconcileAll(cctx.Context); err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	feed := engine.Feed()
	unread := engine.UnreadCount()

	if cctx.Bool("json") {
		out := struct {
			Feed   recon.Feed `json:"feed"`
			Unread int        `json:"unread"`
		}{feed, unread}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("%d unread\n", unread)

	printSection := func(name string, items []recon.DisplayItem) {
		fmt.Printf("\n%s (%d)\n", name, len(items))
		for _, item := range items {
			fmt.Printf("  [%s] %s #%d (%s)\n", item.Classification, item.Title, item.ID, item.Time.Format("2006-01-02 15:04"))
			for _, line := range item.Detail {
				fmt.Printf("      %s\n", line)
			}
		}
	}

	printSection("New", feed.New)
	printSection("Earlier", feed.Earlier)

	return nil
}

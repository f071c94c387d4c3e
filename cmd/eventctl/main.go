// eventctl is a small companion binary for seeding and discovering
// events outside the normal C7 refresh cycle (spec §10): upsert a
// single event directly, or page through TE's performer endpoint and
// upsert every event found with polling disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/config"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/repository"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/teclient"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logrus.New()
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	eventRepo := repository.NewEventRepository(db)

	switch os.Args[1] {
	case "upsert":
		runUpsert(eventRepo, os.Args[2:])
	case "discover":
		runDiscover(eventRepo, cfg, logger, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: eventctl <upsert|discover> [flags]")
}

func runUpsert(events *repository.EventRepository, args []string) {
	fs := flag.NewFlagSet("upsert", flag.ExitOnError)
	id := fs.Int64("id", 0, "TE event id")
	title := fs.String("title", "", "event title")
	startsAt := fs.String("starts-at", "", "RFC3339 start time")
	endsAt := fs.String("ends-at", "", "RFC3339 end time")
	pollingEnabled := fs.Bool("polling-enabled", true, "enable hourly polling for this event")
	_ = fs.Parse(args)

	if *id == 0 || *title == "" {
		fmt.Fprintln(os.Stderr, "upsert: --id and --title are required")
		os.Exit(1)
	}

	ev := &model.Event{
		TEEventID:      *id,
		Title:          *title,
		PollingEnabled: *pollingEnabled,
	}
	if *startsAt != "" {
		t, err := time.Parse(time.RFC3339, *startsAt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upsert: invalid --starts-at: %v\n", err)
			os.Exit(1)
		}
		ev.StartsAt = &t
	}
	if *endsAt != "" {
		t, err := time.Parse(time.RFC3339, *endsAt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upsert: invalid --ends-at: %v\n", err)
			os.Exit(1)
		}
		ev.EndsAt = &t
	}

	if err := events.Upsert(context.Background(), ev); err != nil {
		fmt.Fprintf(os.Stderr, "upsert: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("upserted event %d\n", *id)
}

func runDiscover(events *repository.EventRepository, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	performerID := fs.Int64("performer-id", 0, "TE performer id")
	perPage := fs.Int("per-page", 100, "results per page")
	_ = fs.Parse(args)

	if *performerID == 0 {
		fmt.Fprintln(os.Stderr, "discover: --performer-id is required")
		os.Exit(1)
	}

	client, err := teclient.New(cfg.TE, cfg.Poller.MaxRetries, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	discovered := 0
	for page := 1; ; page++ {
		batch, err := client.EventsByPerformer(ctx, *performerID, page, *perPage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discover: page %d: %v\n", page, err)
			os.Exit(1)
		}
		if len(batch) == 0 {
			break
		}
		for _, te := range batch {
			occursAt, err := time.Parse(time.RFC3339, te.OccursAt)
			if err != nil {
				logger.WithError(err).WithField("te_event_id", te.ID).Warn("discover: skipping event with unparsable occurs_at")
				continue
			}
			endsAt := occursAt.Add(4 * time.Hour)
			ev := &model.Event{
				TEEventID:      te.ID,
				Title:          te.Name,
				StartsAt:       &occursAt,
				EndsAt:         &endsAt,
				PollingEnabled: false,
			}
			if err := events.Upsert(ctx, ev); err != nil {
				fmt.Fprintf(os.Stderr, "discover: upsert event %d: %v\n", te.ID, err)
				continue
			}
			discovered++
		}
		if len(batch) < *perPage {
			break
		}
	}
	fmt.Printf("discovered %d events for performer %d (polling disabled)\n", discovered, *performerID)
}

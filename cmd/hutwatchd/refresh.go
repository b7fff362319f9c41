package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hut-availability-backend/internal/db"
	"hut-availability-backend/internal/source"
	"hut-availability-backend/internal/store"
	"hut-availability-backend/internal/tracker"
)

func refreshCommand() *cobra.Command {
	var (
		hutSlug   string
		all       bool
		dryRun    bool
		days      int
		batchSize int
		interval  time.Duration
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one availability refresh and exit",
		Long: "Runs one refresh cycle: selects due huts (or the ones forced via flags),\n" +
			"fetches them from the booking source in batches and reconciles the results.\n" +
			"Exits non-zero only when a batch failed after exhausting its retries or a\n" +
			"commit failed after its retry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(tracker.RunOptions{
				HutSlug:     hutSlug,
				ForceAll:    all,
				DryRun:      dryRun,
				WindowDays:  days,
				FetchDays:   days,
				BatchSize:   batchSize,
				MinInterval: interval,
			}, jsonOut)
		},
	}

	cmd.Flags().StringVar(&hutSlug, "hut", "", "refresh a single hut by slug")
	cmd.Flags().BoolVar(&all, "all", false, "force-refresh every trackable hut")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the due set and batches without fetching or writing")
	cmd.Flags().IntVar(&days, "days", 0, "number of days to track from today (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "huts per batch (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "minimum interval between requests to one source (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "suppress progress output and print a JSON summary")
	cmd.MarkFlagsMutuallyExclusive("hut", "all")

	return cmd
}

func runRefresh(opts tracker.RunOptions, jsonOut bool) error {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appStore := store.NewGormStore(gormDB)
	srcClient := source.NewClient(&cfg.Source)
	trk := tracker.New(cfg, appStore, srcClient)

	// Cancellation takes effect between batches; committed batches
	// stay durable.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan tracker.Event, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			if !jsonOut {
				printEvent(ev)
			}
		}
	}()

	summary, runErr := trk.Run(ctx, opts, events)
	close(events)
	<-drained

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(summary)
	}

	if runErr != nil {
		return runErr
	}
	if summary.FailedBatches > 0 {
		return fmt.Errorf("%d of %d batches failed after exhausting retries", summary.FailedBatches, summary.Batches)
	}
	return nil
}

func printEvent(ev tracker.Event) {
	switch ev.Type {
	case tracker.EventRunStarted:
		log.Printf("Refresh started: %d hut(s) due", ev.Candidates)
	case tracker.EventBatchPlanned:
		log.Printf("Batch %d/%d: %v", ev.Batch, ev.TotalBatches, ev.Huts)
	case tracker.EventBatchCommitted:
		log.Printf("Batch %d/%d committed: created=%d changed=%d touched=%d rejected=%d failed=%d",
			ev.Batch, ev.TotalBatches,
			ev.Result.Created, ev.Result.Changed, ev.Result.Touched, ev.Result.Rejected, ev.Result.Failed)
	case tracker.EventBatchFailed:
		log.Printf("Batch %d/%d failed: %v", ev.Batch, ev.TotalBatches, ev.Err)
	}
}

func printSummary(s *tracker.Summary) {
	fmt.Println("\n=== Refresh Summary ===")
	if s.DryRun {
		fmt.Println("[dry run - no changes were made]")
	}
	fmt.Printf("Duration:       %s\n", s.Duration.Round(time.Millisecond))
	fmt.Printf("Huts due:       %d\n", s.Candidates)
	fmt.Printf("Batches:        %d (%d failed)\n", s.Batches, s.FailedBatches)
	fmt.Printf("Rows created:   %d\n", s.Counts.Created)
	fmt.Printf("Rows changed:   %d\n", s.Counts.Changed)
	fmt.Printf("Rows touched:   %d\n", s.Counts.Touched)
	fmt.Printf("Rows rejected:  %d\n", s.Counts.Rejected)
	fmt.Printf("Fetch failures: %d\n", s.Counts.Failed)
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/replayer/internal/control"
	"github.com/vietddude/replayer/internal/core/domain"
)

var runFlags struct {
	rangeSpec          string
	mode               string
	dryRun             bool
	batchSize          int
	checkpointInterval uint64
	maxRetries         int
	timeout            time.Duration
	contracts          []string
	eventTypes         []string
	network            string
	serve              bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a replay session",
	Long: `Run a replay session over a ledger range.

Range syntax:
  all               every stored ledger
  from:N            ledger N to the latest
  to:N              the first stored ledger to N
  N-M               ledgers N to M inclusive
  last:N            the N most recent ledgers
  checkpoint:<id>   resume after a checkpoint`,
	Example: `  replayer run --range 1000-2000 --mode verification
  replayer run --range checkpoint:3f0c... --serve`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.rangeSpec, "range", "all", "ledger range to replay")
	f.StringVar(&runFlags.mode, "mode", "", "replay mode: full, incremental, verification, debug (default from config)")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "process events without committing markers or state")
	f.IntVar(&runFlags.batchSize, "batch-size", 0, "ledgers per batch (default from config)")
	f.Uint64Var(&runFlags.checkpointInterval, "checkpoint-interval", 0, "ledgers between checkpoints (default from config)")
	f.IntVar(&runFlags.maxRetries, "max-retries", -1, "retries per failed event (default from config)")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "per-event processing timeout (default from config)")
	f.StringSliceVar(&runFlags.contracts, "contract", nil, "only replay these contract ids")
	f.StringSliceVar(&runFlags.eventTypes, "event-type", nil, "only replay these event types")
	f.StringVar(&runFlags.network, "network", "", "only replay events of this network")
	f.BoolVar(&runFlags.serve, "serve", false, "serve /health and /metrics while the session runs")
	rootCmd.AddCommand(runCmd)
}

// replayConfig merges the run flags over the replay section of the config.
func replayConfig(cmd *cobra.Command) (domain.ReplayConfig, error) {
	rng, err := domain.ParseRange(runFlags.rangeSpec)
	if err != nil {
		return domain.ReplayConfig{}, err
	}

	rc := appConfig.Replay
	flags := cmd.Flags()
	if flags.Changed("mode") {
		rc.Mode = runFlags.mode
	}
	if flags.Changed("dry-run") {
		rc.DryRun = runFlags.dryRun
	}
	if flags.Changed("batch-size") {
		rc.BatchSize = runFlags.batchSize
	}
	if flags.Changed("checkpoint-interval") {
		rc.CheckpointInterval = runFlags.checkpointInterval
	}
	if flags.Changed("max-retries") {
		rc.MaxRetries = &runFlags.maxRetries
	}
	if flags.Changed("timeout") {
		rc.EventTimeout = runFlags.timeout
	}
	if flags.Changed("contract") {
		rc.ContractIDs = runFlags.contracts
	}
	if flags.Changed("event-type") {
		rc.EventTypes = runFlags.eventTypes
	}
	if flags.Changed("network") {
		network, err := domain.ParseNetwork(runFlags.network)
		if err != nil {
			return domain.ReplayConfig{}, err
		}
		rc.Network = network
	}
	return rc.ToDomain(rng)
}

func runReplay(cmd *cobra.Command, args []string) error {
	rc, err := replayConfig(cmd)
	if err != nil {
		return err
	}
	if rc.Mode == domain.ModeDebug {
		setupLogging(appConfig.Logging, true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openReplayer(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("Starting replay", "range", rc.Range, "mode", rc.Mode, "dry_run", rc.DryRun)
	meta, err := app.Run(ctx, rc, control.RunOptions{
		Serve: runFlags.serve,
		OnSession: func(id string) {
			slog.Info("Session created", "session", id)
		},
	})
	if meta != nil {
		printSession(os.Stdout, meta)
	}
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run settlement background work without the HTTP server",
}

var sweepWorkerCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Start the settlement sweeper",
	Long:  `Resettle approved payments that were never relocated and reconcile payments whose callback never arrived`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweepWorker()
	},
}

var (
	sweepOnce     bool
	sweepInterval time.Duration
	maxWorkers    int
	jobQueueSize  int
)

func startSweepWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Use command line flags if provided, otherwise use config values
	config.Settlement.SweepInterval = getDurationFlag(sweepInterval, config.Settlement.SweepInterval)
	config.Settlement.MaxWorkers = getIntFlag(maxWorkers, config.Settlement.MaxWorkers)
	config.Settlement.JobQueueSize = getIntFlag(jobQueueSize, config.Settlement.JobQueueSize)

	app, err := newApp(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := app.Logger

	lg.Info("starting settlement sweeper",
		"interval", config.Settlement.SweepInterval,
		"max_workers", config.Settlement.MaxWorkers,
		"job_queue_size", config.Settlement.JobQueueSize,
		"once", sweepOnce)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sweepOnce {
		result, err := app.Sweeper.SweepOnce(ctx)
		if err != nil {
			lg.Error("sweep failed", "error", err)
		} else {
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
		}
		shutdownApp(app)
		return
	}

	go app.Sweeper.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lg.Info("sweeper is running. Press Ctrl+C to stop.")

	// wait for shutdown signal
	sig := <-sigChan
	lg.Info("received signal, shutting down sweeper", "signal", sig)
	cancel()
	shutdownApp(app)
}

// shutdownApp waits for relocations already handed to the pool.
func shutdownApp(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		app.Close(ctx)
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.Logger.Info("worker pool shutdown complete")
	case <-ctx.Done():
		app.Logger.Warn("shutdown timeout reached, forcing exit")
	}
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	sweepWorkerCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run a single sweep and exit")
	sweepWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Sweep interval (overrides config)")
	sweepWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Relocation workers (overrides config)")
	sweepWorkerCmd.Flags().IntVar(&jobQueueSize, "queue-size", 0, "Relocation queue size (overrides config)")

	workerCmd.AddCommand(sweepWorkerCmd)
	rootCmd.AddCommand(workerCmd)
}

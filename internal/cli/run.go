package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/vuramp/internal/config"
	"github.com/wesleyorama2/vuramp/internal/performance/engine"
	"github.com/wesleyorama2/vuramp/internal/performance/output"
	"github.com/wesleyorama2/vuramp/internal/script"
)

// engineOptions are appended to every engine the run command builds.
// Tests use it to shorten the profile.
var engineOptions []engine.Option

// notifySignals subscribes to SIGINT and SIGTERM. The returned func
// unsubscribes.
var notifySignals = func() (<-chan os.Signal, func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh, func() { signal.Stop(sigCh) }
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the load profile against $BASE_URL",
		Long: `Run the get-users load profile.

The target prefix comes from $BASE_URL (or --base-url) and is used verbatim:
BASE_URL=http://localhost:8080 requests http://localhost:8080/user.

The first SIGINT or SIGTERM stops the run gracefully; a second one aborts
in-flight requests. A completed run exits 0 even when checks failed.

Examples:
  BASE_URL=http://localhost:8080 vuramp run
  vuramp run --base-url https://api.example.com --metrics-addr :9090
  vuramp run --json --out result.json`,
		Args: cobra.NoArgs,
		RunE: runRamp,
	}

	config.AddRunFlags(cmd.Flags())
	cmd.Flags().BoolP("quiet", "q", false, "Only print PASSED or FAILED at the end")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	cmd.Flags().Bool("json", false, "Print the result as JSON instead of the summary")
	cmd.Flags().String("out", "", "Also write the result as JSON to this file")
	cmd.Flags().Duration("progress-interval", time.Second, "How often live progress is printed")

	return cmd
}

func runRamp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outPath, _ := cmd.Flags().GetString("out")
	interval, _ := cmd.Flags().GetDuration("progress-interval")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append([]engine.Option{
		engine.WithLogger(log),
		engine.WithRegistry(reg),
	}, engineOptions...)
	eng, err := engine.New(*cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if cfg.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(cfg.MetricsAddr, reg, log)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	ctx, abort := context.WithCancel(cmd.Context())
	defer abort()
	stopSignals := handleSignals(eng, abort, log)
	defer stopSignals()

	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   quiet || jsonOutput,
		NoColor: noColor,
	})

	p := eng.Profile()
	console.PrintHeader(eng.RunID(), script.UserURL(cfg.BaseURL), len(p.Stages), p.TotalDuration())

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		output.Watch(watchCtx, console, eng, interval)
	}()

	result, runErr := eng.Run(ctx)
	stopWatch()
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	if jsonOutput {
		if err := output.WriteJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		console.PrintSummary(result)
	}

	if outPath != "" {
		if err := output.WriteJSONFile(outPath, result); err != nil {
			return err
		}
		log.Info("Result written", zap.String("path", outPath))
	}

	return nil
}

// handleSignals stops the run gracefully on the first SIGINT or SIGTERM and
// calls abort on the second. The returned func releases the handler.
func handleSignals(eng *engine.Engine, abort context.CancelFunc, log *zap.Logger) func() {
	sigCh, unsubscribe := notifySignals()
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			log.Warn("Stopping run, signal again to abort", zap.String("signal", sig.String()))
		case <-done:
			return
		}

		go func() {
			if err := eng.Stop(context.Background()); err != nil {
				log.Debug("Stop returned", zap.Error(err))
			}
		}()

		select {
		case <-sigCh:
			log.Warn("Aborting run")
			abort()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
}

package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/vuramp/internal/targetserver"
)

func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Serve a stub GET /user to smoke-test a run against",
		Long: `Start a local stub of the system under test.

GET /user answers with --status (200 by default) after --delay.
GET /health reports how many /user requests were served.

Examples:
  vuramp target --addr 127.0.0.1:8080
  vuramp target --status 503 --delay 200ms`,
		Args: cobra.NoArgs,
		RunE: runTarget,
	}

	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().Int("status", http.StatusOK, "Status code GET /user returns")
	cmd.Flags().Duration("delay", 0, "Delay before every GET /user response")

	return cmd
}

func runTarget(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	status, _ := cmd.Flags().GetInt("status")
	delay, _ := cmd.Flags().GetDuration("delay")

	if status < 100 || status > 599 {
		return fmt.Errorf("invalid --status %d: must be between 100 and 599", status)
	}
	if delay < 0 {
		return fmt.Errorf("invalid --delay %s: must not be negative", delay)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := targetserver.New(targetserver.Config{Status: status, Delay: delay}, log)
	return srv.ListenAndServe(ctx, addr, nil)
}

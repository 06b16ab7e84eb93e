package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/vuramp/internal/config"
	"github.com/wesleyorama2/vuramp/internal/logger"
)

var version = "0.1.0"

// NewRootCmd builds the vuramp command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "vuramp",
		Short:   "Ramp virtual users against GET $BASE_URL/user",
		Version: version,
		Long: `vuramp runs a fixed load profile against a single endpoint.

Virtual users ramp from 0 to 20 over 30s, hold 20 for one minute, then ramp
down to 0 over 10s. Each iteration requests GET $BASE_URL/user, checks that
the status is 200, and pauses for one second.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "", "Config file (yaml, json or toml)")
	config.AddLogFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newTargetCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command. Errors are printed to stderr.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig resolves the configuration for cmd from its flags, the
// environment and the --config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(v, configFile)
}

// newLogger builds the command's logger. Logs go to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	noColor, _ := cmd.Flags().GetBool("no-color")
	return logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  cmd.ErrOrStderr(),
		NoColor: noColor,
	})
}

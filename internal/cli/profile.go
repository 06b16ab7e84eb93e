package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/vuramp/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the VU ramp a run follows",
		Long: `Print the stages of the load profile.

--stages previews another compact stage list without running it; the run
command always uses the built-in profile.

Examples:
  vuramp profile
  vuramp profile -o yaml
  vuramp profile --stages "10s:5,20s:5,5s:0"`,
		Args: cobra.NoArgs,
		RunE: showProfile,
	}

	cmd.Flags().String("stages", "", "Preview a compact stage list (e.g. \"30s:20,1m:20,10s:0\")")
	cmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}

func showProfile(cmd *cobra.Command, args []string) error {
	stages, _ := cmd.Flags().GetString("stages")
	format, _ := cmd.Flags().GetString("output")

	p := profile.Default()
	if stages != "" {
		parsed, err := profile.ParseStages(stages)
		if err != nil {
			return fmt.Errorf("invalid stages: %w", err)
		}
		p = profile.Profile{Stages: parsed}
		if err := p.Validate(); err != nil {
			return err
		}
	}

	return writeProfile(cmd.OutOrStdout(), p, format)
}

// writeProfile renders p as a table, JSON or YAML.
func writeProfile(w io.Writer, p profile.Profile, format string) error {
	switch format {
	case "table":
		return writeProfileTable(w, p)
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func writeProfileTable(w io.Writer, p profile.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tSTART\tDURATION\tVUS")

	var start time.Duration
	for i, stage := range p.Stages {
		from, to := p.Ramp(i)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d → %d\n", i+1, stage.Name, start, stage.Duration, from, to)
		start += stage.Duration
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nTotal: %s, max %d VUs (%s)\n", p.TotalDuration(), p.MaxTarget(), p)
	return err
}

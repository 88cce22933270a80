package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modelpulse/modelpulse/internal/api"
	"github.com/modelpulse/modelpulse/internal/metrics"
	"github.com/modelpulse/modelpulse/internal/state"
)

// healthCmd is a one-shot health probe of the backend's components and
// monitored services.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe backend component and service health",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := state.NewStore(state.NewMemoryCache(), metrics.NewSet())
	client := api.NewClient(cfg.API, cfg.Cache, store, nil)
	ctx := cmd.Context()

	components, err := client.ComponentsHealth(ctx, true)
	if err != nil {
		return fmt.Errorf("components health: %w", err)
	}
	services, svcErr := client.Services(ctx, true)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tSTATUS\tLATENCY\tMESSAGE")
	for _, c := range components {
		fmt.Fprintf(w, "%s\t%s\t%.0fms\t%s\n", c.Component, c.Status, c.LatencyMS, c.Message)
	}
	if svcErr == nil {
		fmt.Fprintln(w, "\nSERVICE\tSTATUS\tUPTIME\tLATENCY")
		for _, s := range services {
			fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%.0fms\n", s.Name, s.Status, s.UptimePct, s.LatencyMS)
		}
	}
	return w.Flush()
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/modelpulse/modelpulse/internal/app"
)

var flagOpsAddr string

// dashCmd runs the full live dashboard: every page controller active,
// event stream connected, until interrupted.
var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Run the live dashboard",
	Long: `Connect to the backend's event stream and REST API, start all page
controllers, and print page updates until interrupted.

Example usage:
  modelpulse dash
  modelpulse dash --ws-url=ws://staging:8000/ws --api-url=http://staging:8000/api
  modelpulse dash --ops-addr=127.0.0.1:9290   # expose /healthz /status /metrics`,
	RunE: runDash,
}

func init() {
	dashCmd.Flags().StringVar(&flagOpsAddr, "ops-addr", "", "enable the local ops endpoint on this address")
}

func runDash(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagOpsAddr != "" {
		cfg.Ops.Enabled = true
		cfg.Ops.Addr = flagOpsAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, newTerminalView(os.Stdout))
	log.Info().Str("api", cfg.API.BaseURL).Str("ws", cfg.WebSocket.URL).Msg("starting dashboard")
	return a.Run(ctx)
}

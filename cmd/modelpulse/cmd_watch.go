package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/events"
	"github.com/modelpulse/modelpulse/internal/metrics"
	"github.com/modelpulse/modelpulse/internal/ws"
)

var flagWatchTypes []string

// watchCmd tails the raw event stream, one JSON line per frame. Handy for
// debugging what the backend actually emits.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the backend event stream",
	Long: `Connect to the event stream only and print every frame as JSON.

Example usage:
  modelpulse watch
  modelpulse watch --type=training_progress --type=health_change`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringArrayVar(&flagWatchTypes, "type", nil, "only print these event types (repeatable)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wanted := make(map[string]bool, len(flagWatchTypes))
	for _, t := range flagWatchTypes {
		wanted[t] = true
	}

	conn := ws.NewClient(cfg.WebSocket, metrics.NewSet(), errs.NewHandler())
	defer conn.Close()

	unsub := conn.On(events.TypeMessage, func(ev events.Event) {
		if len(wanted) > 0 && !wanted[ev.EventType()] {
			return
		}
		line, err := json.Marshal(map[string]interface{}{"type": ev.EventType(), "event": ev})
		if err != nil {
			return
		}
		fmt.Println(string(line))
	})
	defer unsub()

	if err := conn.Connect(ctx); err != nil {
		// Reconnect policy keeps trying; report and wait.
		fmt.Fprintf(os.Stderr, "initial connect failed: %v\n", err)
	}

	<-ctx.Done()
	return nil
}

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/modelpulse/modelpulse/internal/controllers"
)

// terminalView prints one-line page updates as controllers re-render. It
// is deliberately plain: the value of the client is the pipeline behind
// it, not the chrome.
type terminalView struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out}
}

func (v *terminalView) Update(page string, model interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch m := model.(type) {
	case controllers.DashboardModel:
		fmt.Fprintf(v.out, "[dashboard] health=%s cpu=%.1f%% mem=%.1f%% training=%d conn=%s/%s %dms\n",
			orDash(m.Health), m.Metrics.CPUPercent, m.Metrics.MemoryPercent,
			len(m.Training), m.Connection.Status, m.Connection.Quality, m.Connection.LatencyMS)
	case controllers.DataModel:
		if m.Loading {
			fmt.Fprintf(v.out, "[data] loading...\n")
		} else {
			fmt.Fprintf(v.out, "[data] datasets=%d\n", len(m.Datasets))
		}
	case controllers.MonitoringModel:
		fmt.Fprintf(v.out, "[monitoring] services=%d alerts=%d rps=%.1f p95=%.0fms\n",
			len(m.Services), len(m.Alerts), m.Performance.RequestsPerSecond, m.Performance.P95LatencyMS)
	case controllers.SettingsModel:
		state := "clean"
		if m.Dirty {
			state = "dirty"
		}
		fmt.Fprintf(v.out, "[settings] theme=%s refresh=%ds (%s)\n",
			orDash(m.Settings.Theme), m.Settings.RefreshIntervalS, state)
	case controllers.ArchitectureModel:
		fmt.Fprintf(v.out, "[architecture] components=%d\n", len(m.Components))
	default:
		fmt.Fprintf(v.out, "[%s] updated\n", page)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

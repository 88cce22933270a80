package ws

import "time"

// Status is the connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// Quality buckets the last measured heartbeat round trip.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Info is a point-in-time snapshot of the connection, safe to hand to UI
// code and to components gating behavior on stream availability.
type Info struct {
	Status            Status  `json:"status"`
	Quality           Quality `json:"quality"`
	LatencyMS         int64   `json:"latency_ms"`
	ReconnectAttempts int     `json:"reconnect_attempts"`
}

// qualityFor maps a round trip to its bucket given the configured
// boundaries.
func qualityFor(latency time.Duration, excellent, good, fair time.Duration) Quality {
	switch {
	case latency <= excellent:
		return QualityExcellent
	case latency <= good:
		return QualityGood
	case latency <= fair:
		return QualityFair
	default:
		return QualityPoor
	}
}

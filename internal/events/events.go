// Package events defines the typed shapes of the frames the backend pushes
// over the event stream, plus a decoder that maps the wire `type` field to
// the matching variant. Unknown types decode into Generic so newer server
// events still reach generic subscribers.
package events

import (
	"encoding/json"
	"fmt"
)

// Reserved event names synthesized by the connection layer rather than
// received from the server.
const (
	TypeConnected            = "connected"
	TypeDisconnected         = "disconnected"
	TypeReconnecting         = "reconnecting"
	TypeError                = "error"
	TypeMaxReconnectAttempts = "max_reconnect_attempts"

	// TypeMessage is the catch-all name: every inbound server frame is also
	// delivered to subscribers of this event.
	TypeMessage = "message"
)

// Server frame types.
const (
	TypePing               = "ping"
	TypePong               = "pong"
	TypeRequestMetrics     = "request_metrics"
	TypeSystemMetrics      = "system_metrics"
	TypeTrainingProgress   = "training_progress"
	TypeTrainingCompleted  = "training_completed"
	TypeTrainingFailed     = "training_failed"
	TypeActivityUpdate     = "activity_update"
	TypeHealthChange       = "health_change"
	TypeModelDeployed      = "model_deployed"
	TypePipelineStatus     = "pipeline_status"
	TypePipelineProgress   = "pipeline_progress"
	TypePipelineCompleted  = "pipeline_completed"
	TypePipelineFailed     = "pipeline_failed"
	TypePredictionVolume   = "prediction_volume"
	TypeQualityAssessment  = "quality_assessment"
	TypeDatasetProcessed   = "dataset_processed"
	TypeComponentHealth    = "component_health"
	TypeServiceHealth      = "service_health"
	TypePerformanceMetrics = "performance_metrics"
)

// Event is one decoded frame from the stream.
type Event interface {
	EventType() string
}

// Handler consumes decoded events. Handlers run synchronously on the read
// loop in registration order.
type Handler func(Event)

// Ping is the outbound heartbeat frame.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Pong echoes the timestamp of the matching ping.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

func (Pong) EventType() string { return TypePong }

// SystemMetrics is the periodic host/process metrics push.
type SystemMetrics struct {
	Timestamp          string  `json:"timestamp"`
	CPUPercent         float64 `json:"cpu_percent"`
	MemoryPercent      float64 `json:"memory_percent"`
	DiskPercent        float64 `json:"disk_percent"`
	ActiveConnections  int     `json:"active_connections"`
	TotalModels        int     `json:"total_models"`
	ActiveTrainingJobs int     `json:"active_training_jobs"`
	ProcessCount       int     `json:"process_count"`
	UptimeHours        float64 `json:"uptime_hours"`
	APIResponseTimeMS  float64 `json:"api_response_time_ms"`
	WSResponseTimeMS   float64 `json:"ws_response_time_ms"`
	TrainingProgress   float64 `json:"training_progress"`
	TrainingMessage    string  `json:"training_message"`
	SystemHealth       string  `json:"system_health"`
}

func (SystemMetrics) EventType() string { return TypeSystemMetrics }

// TrainingProgress reports one step of a running training job.
type TrainingProgress struct {
	JobID    string  `json:"job_id"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage"`
	Message  string  `json:"message"`
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"`
}

func (TrainingProgress) EventType() string { return TypeTrainingProgress }

// TrainingCompleted marks a job's successful end.
type TrainingCompleted struct {
	JobID    string  `json:"job_id"`
	ModelID  string  `json:"model_id"`
	Accuracy float64 `json:"accuracy"`
	Message  string  `json:"message"`
}

func (TrainingCompleted) EventType() string { return TypeTrainingCompleted }

// TrainingFailed marks a job's abnormal end.
type TrainingFailed struct {
	JobID   string `json:"job_id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (TrainingFailed) EventType() string { return TypeTrainingFailed }

// ActivityUpdate is one entry of the activity feed.
type ActivityUpdate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}

func (ActivityUpdate) EventType() string { return TypeActivityUpdate }

// HealthChange signals a transition of the aggregate system health.
type HealthChange struct {
	Event         string  `json:"event"`
	Health        string  `json:"health"`
	Previous      string  `json:"previous"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	Message       string  `json:"message"`
}

func (HealthChange) EventType() string { return TypeHealthChange }

// ModelDeployed announces a model deployment.
type ModelDeployed struct {
	Event     string `json:"event"`
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name"`
	Version   string `json:"version"`
	Endpoint  string `json:"endpoint"`
}

func (ModelDeployed) EventType() string { return TypeModelDeployed }

// PipelineStatus announces a lifecycle change of a pipeline definition,
// carrying the full definition as sent by the backend.
type PipelineStatus struct {
	PipelineID string          `json:"pipeline_id"`
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data"`
}

func (PipelineStatus) EventType() string { return TypePipelineStatus }

// PipelineProgress reports one stage of a pipeline run.
type PipelineProgress struct {
	PipelineID string  `json:"pipeline_id"`
	RunID      string  `json:"run_id"`
	Step       string  `json:"step"`
	Progress   float64 `json:"progress"`
	Message    string  `json:"message"`
}

func (PipelineProgress) EventType() string { return TypePipelineProgress }

// PipelineCompleted marks a successful pipeline run.
type PipelineCompleted struct {
	PipelineID string  `json:"pipeline_id"`
	RunID      string  `json:"run_id"`
	DurationS  float64 `json:"duration_seconds"`
	Message    string  `json:"message"`
}

func (PipelineCompleted) EventType() string { return TypePipelineCompleted }

// PipelineFailed marks a failed pipeline run.
type PipelineFailed struct {
	PipelineID string `json:"pipeline_id"`
	RunID      string `json:"run_id"`
	Step       string `json:"step"`
	Error      string `json:"error"`
}

func (PipelineFailed) EventType() string { return TypePipelineFailed }

// DatasetProcessed announces that an uploaded dataset finished processing.
type DatasetProcessed struct {
	DatasetID string `json:"dataset_id"`
	Name      string `json:"name"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	Status    string `json:"status"`
}

func (DatasetProcessed) EventType() string { return TypeDatasetProcessed }

// PredictionVolume marks a prediction-count milestone across all deployed
// models.
type PredictionVolume struct {
	Event            string `json:"event"`
	TotalPredictions int64  `json:"total_predictions"`
	Message          string `json:"message"`
	Timestamp        string `json:"timestamp"`
	Priority         string `json:"priority"`
}

func (PredictionVolume) EventType() string { return TypePredictionVolume }

// QualityAssessment reports a dataset quality evaluation, with the raw
// per-column statistics preserved for consumers that want them.
type QualityAssessment struct {
	DatasetID    string          `json:"dataset_id"`
	QualityScore float64         `json:"quality_score"`
	Stats        json.RawMessage `json:"stats"`
}

func (QualityAssessment) EventType() string { return TypeQualityAssessment }

// ComponentHealth reports health of one backend component.
type ComponentHealth struct {
	Component string  `json:"component"`
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `json:"message"`
}

func (ComponentHealth) EventType() string { return TypeComponentHealth }

// ServiceHealth reports health of one monitored service.
type ServiceHealth struct {
	Service   string  `json:"service"`
	Status    string  `json:"status"`
	UptimePct float64 `json:"uptime_pct"`
	LatencyMS float64 `json:"latency_ms"`
}

func (ServiceHealth) EventType() string { return TypeServiceHealth }

// PerformanceMetrics carries request latency/throughput aggregates.
type PerformanceMetrics struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	P50LatencyMS      float64 `json:"p50_latency_ms"`
	P95LatencyMS      float64 `json:"p95_latency_ms"`
	P99LatencyMS      float64 `json:"p99_latency_ms"`
	ErrorRate         float64 `json:"error_rate"`
}

func (PerformanceMetrics) EventType() string { return TypePerformanceMetrics }

// Generic wraps frames with a type this client does not model, and is also
// used for connection lifecycle notices.
type Generic struct {
	Type   string
	Fields map[string]interface{}
	Raw    json.RawMessage
}

func (g Generic) EventType() string { return g.Type }

// Notice builds a lifecycle event carrying optional key/value context.
func Notice(eventType string, fields map[string]interface{}) Generic {
	return Generic{Type: eventType, Fields: fields}
}

// decoders maps the wire discriminant to a concrete decode step.
var decoders = map[string]func(json.RawMessage) (Event, error){
	TypePong:               decodeInto[Pong],
	TypeSystemMetrics:      decodeInto[SystemMetrics],
	TypeTrainingProgress:   decodeInto[TrainingProgress],
	TypeTrainingCompleted:  decodeInto[TrainingCompleted],
	TypeTrainingFailed:     decodeInto[TrainingFailed],
	TypeActivityUpdate:     decodeInto[ActivityUpdate],
	TypeHealthChange:       decodeInto[HealthChange],
	TypeModelDeployed:      decodeInto[ModelDeployed],
	TypePipelineStatus:     decodeInto[PipelineStatus],
	TypePipelineProgress:   decodeInto[PipelineProgress],
	TypePipelineCompleted:  decodeInto[PipelineCompleted],
	TypePipelineFailed:     decodeInto[PipelineFailed],
	TypePredictionVolume:   decodeInto[PredictionVolume],
	TypeQualityAssessment:  decodeInto[QualityAssessment],
	TypeDatasetProcessed:   decodeInto[DatasetProcessed],
	TypeComponentHealth:    decodeInto[ComponentHealth],
	TypeServiceHealth:      decodeInto[ServiceHealth],
	TypePerformanceMetrics: decodeInto[PerformanceMetrics],
}

func decodeInto[T Event](raw json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses one inbound frame. The frame must be a JSON object with a
// string `type` field; known types decode into their variant, everything
// else falls back to Generic with the parsed fields preserved.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("frame has no type field")
	}

	if decode, ok := decoders[envelope.Type]; ok {
		ev, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s frame: %w", envelope.Type, err)
		}
		return ev, nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
	}
	return Generic{Type: envelope.Type, Fields: fields, Raw: append(json.RawMessage(nil), data...)}, nil
}

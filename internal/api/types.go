package api

// Dataset is one uploaded dataset as the backend reports it.
type Dataset struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Filename   string  `json:"filename"`
	SizeBytes  int64   `json:"size_bytes"`
	Rows       int     `json:"rows"`
	Columns    int     `json:"columns"`
	Status     string  `json:"status"`
	Quality    float64 `json:"quality_score"`
	UploadedAt string  `json:"uploaded_at"`
}

// Model is one trained model.
type Model struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Accuracy   float64 `json:"accuracy"`
	Status     string  `json:"status"`
	Deployed   bool    `json:"deployed"`
	Endpoint   string  `json:"endpoint,omitempty"`
	TrainedAt  string  `json:"trained_at"`
	DatasetID  string  `json:"dataset_id"`
	Parameters int64   `json:"parameters"`
}

// Prediction is the response to a predict call.
type Prediction struct {
	ModelID    string      `json:"model_id"`
	Prediction interface{} `json:"prediction"`
	Confidence float64     `json:"confidence"`
	LatencyMS  float64     `json:"latency_ms"`
}

// PipelineStep is one stage of a pipeline definition.
type PipelineStep struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Pipeline is one pipeline definition with its last run state.
type Pipeline struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []PipelineStep `json:"steps"`
	Status      string         `json:"status"`
	LastRunID   string         `json:"last_run_id,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// PipelineRun is the state of one pipeline execution.
type PipelineRun struct {
	RunID      string  `json:"run_id"`
	PipelineID string  `json:"pipeline_id"`
	Status     string  `json:"status"`
	Step       string  `json:"current_step"`
	Progress   float64 `json:"progress"`
	StartedAt  string  `json:"started_at"`
}

// TrainingJob is the status of one training job.
type TrainingJob struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage"`
	Message  string  `json:"message"`
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"`
	ModelID  string  `json:"model_id,omitempty"`
}

// TrainingRequest starts a training job.
type TrainingRequest struct {
	DatasetID string                 `json:"dataset_id"`
	ModelName string                 `json:"model_name"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// Settings is the backend-held dashboard configuration.
type Settings struct {
	RefreshIntervalS   int    `json:"refresh_interval_seconds"`
	NotificationsOn    bool   `json:"notifications_enabled"`
	RetentionDays      int    `json:"retention_days"`
	DefaultModelFormat string `json:"default_model_format"`
	Theme              string `json:"theme"`
}

// Activity is one entry of the backend activity feed.
type Activity struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}

// MonitoringMetrics aggregates live backend metrics.
type MonitoringMetrics struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryPercent     float64 `json:"memory_percent"`
	DiskPercent       float64 `json:"disk_percent"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	ErrorRate         float64 `json:"error_rate"`
	P95LatencyMS      float64 `json:"p95_latency_ms"`
	ActiveConnections int     `json:"active_connections"`
}

// ServiceStatus is one monitored service.
type ServiceStatus struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	UptimePct float64 `json:"uptime_pct"`
	LatencyMS float64 `json:"latency_ms"`
	LastCheck string  `json:"last_check"`
}

// Alert is one monitoring alert.
type Alert struct {
	ID           string `json:"id"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	Source       string `json:"source"`
	Acknowledged bool   `json:"acknowledged"`
	RaisedAt     string `json:"raised_at"`
}

// ComponentHealth is the health report of one backend component.
type ComponentHealth struct {
	Component string  `json:"component"`
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `json:"message"`
}

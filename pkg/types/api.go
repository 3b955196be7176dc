package types

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	// Winning class label (argmax of Scores, first index on ties).
	// example: white
	Label string `json:"label" example:"white"`
	// Score of the winning class.
	// example: 0.93
	Score float32 `json:"score" example:"0.93"`
	// Index of the winning class in Labels.
	// example: 1
	Index int `json:"index" example:"1"`
	// One score per class, in the same order as Labels.
	Scores []float32 `json:"scores"`
	// Class labels in class-index order.
	Labels []string `json:"labels"`
	// Engine handle that served the request.
	// example: 0
	Handle int `json:"handle" example:"0"`
	// True when this request was the handle's warm-up prediction.
	// example: false
	Cold bool `json:"cold" example:"false"`
	// Inference time in milliseconds.
	// example: 3
	DurationMS int64 `json:"duration_ms" example:"3"`
	// Filename echoed from the request, if any.
	Filename string `json:"filename,omitempty"`
	// Caller-supplied label echoed from ?label=, if any.
	ExpectedLabel string `json:"expected_label,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: pool exhausted
	Error string `json:"error" example:"pool exhausted"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// HandleStatus summarizes one engine handle for /status.
type HandleStatus struct {
	// example: 0
	ID int `json:"id" example:"0"`
	// example: false
	Busy bool `json:"busy" example:"false"`
	// example: true
	Warmed bool `json:"warmed" example:"true"`
	// Warm-up completion time (unix seconds); 0 while cold.
	WarmedAtUnix int64 `json:"warmed_at_unix,omitempty"`
	// Duration of the warm-up prediction in milliseconds.
	WarmupMS int64 `json:"warmup_ms,omitempty"`
	// Bytes the backend reported allocating on warm-up.
	WarmupBytes int64 `json:"warmup_bytes,omitempty"`
	// example: 42
	Predictions uint64 `json:"predictions" example:"42"`
	// example: 0
	Failures uint64 `json:"failures" example:"0"`
	// Last time this handle served a request (unix seconds).
	LastUsedUnix int64 `json:"last_used_unix,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Pool identifier assigned at creation.
	PoolID string `json:"pool_id"`
	// example: centroid
	Backend string `json:"backend" example:"centroid"`
	// Path of the loaded artifact.
	// example: /srv/models/colors.json
	Artifact string `json:"artifact" example:"/srv/models/colors.json"`
	// sha256 of the artifact.
	ArtifactDigest string `json:"artifact_digest"`
	// example: 10240
	ArtifactBytes int64 `json:"artifact_bytes" example:"10240"`
	// Class labels in class-index order.
	Labels []string `json:"labels"`
	// example: blocking
	AcquireMode string `json:"acquire_mode" example:"blocking"`
	// example: 4
	Size int `json:"size" example:"4"`
	// example: 3
	Idle int `json:"idle" example:"3"`
	// example: 1
	Busy int `json:"busy" example:"1"`
	// example: 4
	Warmed int `json:"warmed" example:"4"`
	// Callers queued in Acquire.
	// example: 0
	Waiters int `json:"waiters" example:"0"`
	// example: false
	Closed bool `json:"closed" example:"false"`
	// Per-handle accounting.
	Handles []HandleStatus `json:"handles"`
	// Overall state: ready or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Current process memory (RSS when available) in bytes.
	MemoryBytes int64 `json:"memory_bytes"`
}

// ProbeStep is one memory measurement of a probe run.
type ProbeStep struct {
	// baseline, create or predict
	// example: predict
	Phase string `json:"phase" example:"predict"`
	// example: 1
	Pass int `json:"pass,omitempty" example:"1"`
	// Handle id, -1 for pool-level steps.
	// example: 0
	Handle int `json:"handle" example:"0"`
	Label  string `json:"label,omitempty"`
	Cold   bool   `json:"cold,omitempty"`
	// Process memory after the step, in bytes.
	MemoryBytes int64 `json:"memory_bytes"`
	// Change since the previous step, in bytes.
	DeltaBytes int64 `json:"delta_bytes"`
	// Same value formatted in GB.
	// example: 0.0312 GB
	Memory string `json:"memory" example:"0.0312 GB"`
}

// ProbeResponse is returned by GET /classifyimage.
type ProbeResponse struct {
	// example: The test is finished. :). Total memory consumption: 0.0312 GB
	Message string `json:"message" example:"The test is finished. :). Total memory consumption: 0.0312 GB"`
	RunID   string `json:"run_id"`
	// example: 2
	PoolSize int `json:"pool_size" example:"2"`
	// example: 2
	Passes int         `json:"passes" example:"2"`
	Steps  []ProbeStep `json:"steps"`
	// True when any handle kept growing after its first prediction.
	// example: false
	RepeatedGrowth bool `json:"repeated_growth" example:"false"`
	// example: 0.0312 GB
	TotalMemory string `json:"total_memory" example:"0.0312 GB"`
}

package server

import (
	"github.com/clinivox/clinivox/internal/pipeline"
)

// Commands accepted on the request channel.
const (
	CmdHealth = "health"
	CmdRun    = "run"
)

// Request is one line of the control protocol. Cmd selects the handler;
// the remaining fields only apply to "run".
type Request struct {
	Cmd string `json:"cmd"`

	// JobID correlates the response with the request. Empty lets the
	// server assign a fresh UUID.
	JobID string `json:"job_id,omitempty"`

	// AudioPath is a local audio file; AudioS3Path is an object-store
	// reference (s3:// URI or bare key). Exactly one must be set.
	AudioPath   string `json:"audio_path,omitempty"`
	AudioS3Path string `json:"audio_s3_path,omitempty"`

	// Language is an optional ASR language hint. Empty lets the
	// transcriber's configured default apply.
	Language string `json:"language,omitempty"`

	SkipTranslation bool `json:"skip_translation,omitempty"`
	SkipClinical    bool `json:"skip_clinical,omitempty"`
}

// healthResponse answers a health probe. It is valid (ready=false) while
// the background loader is still running.
type healthResponse struct {
	Status       string          `json:"status"`
	Ready        bool            `json:"ready"`
	ModelsLoaded map[string]bool `json:"models_loaded"`
	ModelErrors  []string        `json:"model_errors"`
}

// runResponse answers a run command, in either its done or failed shape.
type runResponse struct {
	JobID  string           `json:"job_id"`
	Status string           `json:"status"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Trace  string           `json:"trace,omitempty"`
}

// errorResponse answers malformed input and unknown commands.
type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

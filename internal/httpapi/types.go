package httpapi

import (
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

// CompileRequest is the input shape shared by the sync, streaming, and
// per-item batch compile variants.
type CompileRequest struct {
	Configuration     *model.Configuration `json:"configuration"`
	PreFetchedContent map[string][]byte    `json:"preFetchedContent,omitempty"`
	Benchmark         bool                 `json:"benchmark,omitempty"`
}

// CompileResponse is the output shape for one compile request.
type CompileResponse struct {
	Success         bool            `json:"success"`
	Rules           []string        `json:"rules,omitempty"`
	RuleCount       int             `json:"ruleCount"`
	Metrics         *model.Metrics  `json:"metrics,omitempty"`
	CompiledAt      time.Time       `json:"compiledAt"`
	PreviousVersion *model.Summary  `json:"previousVersion,omitempty"`
	Error           string          `json:"error,omitempty"`
}

func responseFromResult(result *model.Result) CompileResponse {
	resp := CompileResponse{
		Success:         true,
		Rules:           result.Rules,
		RuleCount:       result.RuleCount,
		CompiledAt:      result.CompiledAt,
		PreviousVersion: result.PreviousVersion,
	}
	if !result.Cancelled {
		resp.Metrics = result.Metrics
	}
	return resp
}

func errorResponse(err error) CompileResponse {
	return CompileResponse{Success: false, Error: err.Error()}
}

// BatchRequestItem is one item of a batch compile request.
type BatchRequestItem struct {
	ID                string               `json:"id"`
	Configuration     *model.Configuration `json:"configuration"`
	PreFetchedContent map[string][]byte    `json:"preFetchedContent,omitempty"`
	Benchmark         bool                 `json:"benchmark,omitempty"`
}

// BatchRequest is the input to the batch compile endpoint.
type BatchRequest struct {
	Requests []BatchRequestItem `json:"requests"`
}

// BatchResultItem pairs a batch item's id with its compile response.
type BatchResultItem struct {
	ID string `json:"id"`
	CompileResponse
}

// BatchResponse is the output of the batch compile endpoint.
type BatchResponse struct {
	Success bool              `json:"success"`
	Results []BatchResultItem `json:"results"`
}

const maxBatchSize = 10

// HealthResponse is the output of the health endpoint.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult is one named health check's outcome.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AsyncAcceptedResponse is returned by the async compile endpoint.
type AsyncAcceptedResponse struct {
	RequestID string `json:"requestId"`
}

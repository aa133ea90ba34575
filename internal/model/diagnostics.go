package model

import "time"

// EventCategory tags a DiagnosticEvent's subsystem of origin.
type EventCategory string

const (
	CategoryCompilation  EventCategory = "compilation"
	CategoryDownload     EventCategory = "download"
	CategoryTransform    EventCategory = "transformation"
	CategoryCache        EventCategory = "cache"
	CategoryValidation   EventCategory = "validation"
	CategoryNetwork      EventCategory = "network"
	CategoryPerformance  EventCategory = "performance"
	CategoryError        EventCategory = "error"
)

// Severity is the log-level-like severity of a DiagnosticEvent.
type Severity string

const (
	SeverityTrace Severity = "trace"
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// EventVariant discriminates the shape of a DiagnosticEvent's payload.
type EventVariant string

const (
	VariantOperationStart    EventVariant = "operation_start"
	VariantOperationComplete EventVariant = "operation_complete"
	VariantOperationError    EventVariant = "operation_error"
	VariantMetric            EventVariant = "metric"
	VariantCacheOp           EventVariant = "cache_op"
	VariantNetworkOp         EventVariant = "network_op"
)

// DiagnosticEvent is one tagged record in a tracing context's event log.
type DiagnosticEvent struct {
	EventID       string                 `json:"event_id"`
	CorrelationID string                 `json:"correlation_id"`
	ParentEventID string                 `json:"parent_event_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Category      EventCategory          `json:"category"`
	Severity      Severity               `json:"severity"`
	Variant       EventVariant           `json:"variant"`
	Operation     string                 `json:"operation,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Duration      time.Duration          `json:"duration,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

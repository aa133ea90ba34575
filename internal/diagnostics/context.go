// Package diagnostics implements a per-compilation tracing context and
// event collection: correlation IDs, parent/child event linkage, and URL
// sanitization for anything logged. Unlike a pub/sub fan-out broadcaster
// with many subscribers, a diagnostics stream has exactly one reader (the
// originating compile request), so it is modeled as an append-only
// per-trace event log instead.
package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

// Context carries one compilation's correlation ID and the Collector
// events should be appended to. It is passed explicitly (not via
// context.Context values) so callers always see it in a function
// signature rather than an ambient value.
type Context struct {
	CorrelationID string
	parentEventID string
	collector     Collector
	cancel        context.Context
}

// New creates a root tracing Context for one compilation request.
func New(ctx context.Context, collector Collector) *Context {
	if collector == nil {
		collector = NoopCollector{}
	}
	return &Context{
		CorrelationID: uuid.NewString(),
		collector:     collector,
		cancel:        ctx,
	}
}

// Done reports the underlying cancellation signal, acting as the
// cooperative cancel token passed through all suspending boundaries.
func (c *Context) Done() <-chan struct{} {
	return c.cancel.Done()
}

// Err returns the underlying context's error, if cancelled.
func (c *Context) Err() error {
	return c.cancel.Err()
}

// Ctx returns the underlying context.Context, for callers that need to
// pass cancellation through to a stdlib-shaped API (e.g. an HTTP client).
func (c *Context) Ctx() context.Context {
	return c.cancel
}

// Child derives a child tracing Context sharing the same correlation ID
// but recording its own parent-event linkage, used when a stage spawns
// nested operations (e.g. the pipeline spawning a per-source fetch).
func (c *Context) Child(parentEventID string) *Context {
	return &Context{
		CorrelationID: c.CorrelationID,
		parentEventID: parentEventID,
		collector:     c.collector,
		cancel:        c.cancel,
	}
}

// Emit appends a diagnostic event, stamping correlation and parent
// linkage automatically, and returns the new event's ID so a subsequent
// "complete" event (or a child context) can reference it as parent.
func (c *Context) Emit(category model.EventCategory, severity model.Severity, variant model.EventVariant, operation string, payload map[string]interface{}) string {
	event := model.DiagnosticEvent{
		EventID:       uuid.NewString(),
		CorrelationID: c.CorrelationID,
		ParentEventID: c.parentEventID,
		Timestamp:     time.Now(),
		Category:      category,
		Severity:      severity,
		Variant:       variant,
		Operation:     operation,
		Payload:       sanitizePayload(payload),
	}
	c.collector.Append(event)
	return event.EventID
}

// EmitError records an operation_error event and sanitizes err's message.
func (c *Context) EmitError(category model.EventCategory, operation string, err error) string {
	event := model.DiagnosticEvent{
		EventID:       uuid.NewString(),
		CorrelationID: c.CorrelationID,
		ParentEventID: c.parentEventID,
		Timestamp:     time.Now(),
		Category:      category,
		Severity:      model.SeverityError,
		Variant:       model.VariantOperationError,
		Operation:     operation,
		Error:         SanitizeURL(err.Error()),
	}
	c.collector.Append(event)
	return event.EventID
}

// Span emits an operation_start event, runs fn with a child Context
// carrying that event as parent, and emits the matching
// operation_complete/operation_error event with the elapsed duration.
func (c *Context) Span(category model.EventCategory, operation string, fn func(child *Context) error) error {
	startID := c.Emit(category, model.SeverityInfo, model.VariantOperationStart, operation, nil)
	child := c.Child(startID)
	start := time.Now()

	err := fn(child)
	duration := time.Since(start)

	if err != nil {
		child.collector.Append(model.DiagnosticEvent{
			EventID:       uuid.NewString(),
			CorrelationID: c.CorrelationID,
			ParentEventID: startID,
			Timestamp:     time.Now(),
			Category:      category,
			Severity:      model.SeverityError,
			Variant:       model.VariantOperationError,
			Operation:     operation,
			Duration:      duration,
			Error:         SanitizeURL(err.Error()),
		})
		return err
	}

	child.collector.Append(model.DiagnosticEvent{
		EventID:       uuid.NewString(),
		CorrelationID: c.CorrelationID,
		ParentEventID: startID,
		Timestamp:     time.Now(),
		Category:      category,
		Severity:      model.SeverityInfo,
		Variant:       model.VariantOperationComplete,
		Operation:     operation,
		Duration:      duration,
	})
	return nil
}

// Events returns all events recorded so far, in append order.
func (c *Context) Events() []model.DiagnosticEvent {
	return c.collector.Events()
}

func sanitizePayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = SanitizeURL(s)
			continue
		}
		out[k] = v
	}
	return out
}

// Collector is the append-only sink a tracing Context writes to.
type Collector interface {
	Append(event model.DiagnosticEvent)
	Events() []model.DiagnosticEvent
}

// NoopCollector discards every event; the default for production paths
// that don't need a retained diagnostics stream.
type NoopCollector struct{}

func (NoopCollector) Append(model.DiagnosticEvent) {}
func (NoopCollector) Events() []model.DiagnosticEvent { return nil }

// MemoryCollector retains events in append order behind a mutex, used by
// the SSE/WebSocket streaming adapters and by tests.
type MemoryCollector struct {
	mu     sync.Mutex
	events []model.DiagnosticEvent
}

func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

func (m *MemoryCollector) Append(event model.DiagnosticEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MemoryCollector) Events() []model.DiagnosticEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DiagnosticEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Package analytics implements the fire-and-forget event-data writer: a
// narrow producer that hands compilation/workflow events to an external
// analytics sink without blocking the caller or retrying on failure. The
// sink itself is an external collaborator, specified only at this
// interface — the package's job is getting an event off the hot path,
// not delivering it durably.
package analytics

import (
	"context"
	"log/slog"
)

// Event is one fire-and-forget analytics record.
type Event struct {
	Name       string                 `json:"name"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Sink delivers Events to the external analytics collaborator. A Sink
// implementation owns its own retry/batching policy, if any; Emitter
// treats every call as best-effort.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Emitter hands Events to a Sink from a buffered channel drained by one
// background worker, so Emit never blocks the caller and a slow or down
// sink only drops events rather than backing up the compile path,
// mirroring the shape of realtime.DefaultEventBus's broadcast worker.
type Emitter struct {
	sink    Sink
	events  chan Event
	logger  *slog.Logger
	done    chan struct{}
}

const defaultBufferSize = 1000

// New constructs an Emitter delivering to sink. A nil sink makes every
// Emit a no-op, for deployments with no analytics collaborator
// configured.
func New(sink Sink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		sink:   sink,
		events: make(chan Event, defaultBufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the background delivery worker until ctx is cancelled.
func (e *Emitter) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.events:
			if e.sink == nil {
				continue
			}
			if err := e.sink.Send(ctx, event); err != nil {
				e.logger.Warn("analytics sink rejected event", "event", event.Name, "error", err)
			}
		}
	}
}

// Emit queues event for delivery, dropping it rather than blocking if the
// buffer is full.
func (e *Emitter) Emit(event Event) {
	select {
	case e.events <- event:
	default:
		e.logger.Warn("analytics event buffer full, dropping event", "event", event.Name)
	}
}

// Stop waits for the background worker to exit after its context is
// cancelled.
func (e *Emitter) Stop() {
	<-e.done
}

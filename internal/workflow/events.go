package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
)

const (
	eventKeyPrefix = "workflow/events/"

	// defaultEventLimit bounds the per-instance event ring. Events are
	// progress notices, not a durable audit trail, so old ones are
	// dropped once the ring fills rather than retained indefinitely.
	defaultEventLimit = 100
	eventTTL          = time.Hour
)

// Event is one progress notice in an instance's event log.
type Event struct {
	Name      string                 `json:"name"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// EventLog records a bounded, best-effort progress stream per instance.
// It is explicitly not linearizable: concurrent Append calls for the same
// instance may interleave or, under a lost race with trimming, be
// dropped. Callers needing the authoritative outcome read Instance
// instead.
type EventLog struct {
	store  kv.Store
	logger *slog.Logger
}

// NewEventLog constructs an EventLog backed by store.
func NewEventLog(store kv.Store, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{store: store, logger: logger}
}

func eventKey(instanceID string, ts time.Time) string {
	return fmt.Sprintf("%s%s/%d", eventKeyPrefix, instanceID, ts.UnixNano())
}

// Append records name/payload as a new event for instanceID and trims the
// ring to defaultEventLimit. Failures are logged, not returned: a missed
// progress event never affects the workflow's durable outcome.
func (l *EventLog) Append(ctx context.Context, instanceID, name string, payload map[string]interface{}) {
	event := Event{Name: name, Timestamp: time.Now(), Payload: payload}
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal workflow event", "instance", instanceID, "event", name, "error", err)
		return
	}
	key := eventKey(instanceID, event.Timestamp)
	if err := l.store.Set(ctx, key, data, eventTTL); err != nil {
		l.logger.Warn("failed to append workflow event", "instance", instanceID, "event", name, "error", err)
		return
	}
	l.trim(ctx, instanceID)
}

// trim deletes the oldest events beyond defaultEventLimit. Best-effort.
func (l *EventLog) trim(ctx context.Context, instanceID string) {
	keys, err := l.store.ListPrefix(ctx, eventKeyPrefix+instanceID+"/")
	if err != nil || len(keys) <= defaultEventLimit {
		return
	}
	sort.Strings(keys)
	excess := len(keys) - defaultEventLimit
	for _, k := range keys[:excess] {
		if err := l.store.Delete(ctx, k); err != nil {
			l.logger.Warn("failed to trim workflow event", "key", k, "error", err)
		}
	}
}

// Recent returns up to limit recent events for instanceID, oldest first.
// limit of 0 returns up to defaultEventLimit.
func (l *EventLog) Recent(ctx context.Context, instanceID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	keys, err := l.store.ListPrefix(ctx, eventKeyPrefix+instanceID+"/")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		data, ok, err := l.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

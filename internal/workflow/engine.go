// Package workflow executes long-running or scheduled compilations with
// durable, replayable step checkpoints over a kv.Store: a step whose
// output was already recorded successfully is never re-executed on
// resume, only returned.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/adblock-compiler/internal/kv"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

const instanceKeyPrefix = "workflow/instances/"

// BackoffKind selects how a step's retry delay grows between attempts.
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy controls how many times a step is retried and how the delay
// between attempts grows.
type RetryPolicy struct {
	Limit   int
	Delay   time.Duration
	Backoff BackoffKind
}

func (p RetryPolicy) delayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	switch p.Backoff {
	case BackoffLinear:
		return p.Delay * time.Duration(attempt)
	case BackoffExponential:
		return p.Delay * time.Duration(1<<uint(attempt-1))
	default:
		return p.Delay
	}
}

// Step is one named unit of durable work. Run receives only the attempt's
// context (any parameters are captured by the closure) and must be safe to
// invoke again on resume if its prior attempt never recorded a successful
// output.
type Step struct {
	Name    string
	Retries RetryPolicy
	Timeout time.Duration
	Run     func(ctx context.Context) (interface{}, error)
}

// Engine executes named sequences of Steps as durable Instances.
type Engine struct {
	store   kv.Store
	events  *EventLog
	logger  *slog.Logger
	metrics *metrics.WorkflowMetrics
}

// New constructs an Engine backed by store.
func New(store kv.Store, logger *slog.Logger, m *metrics.WorkflowMetrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, events: NewEventLog(store, logger), logger: logger, metrics: m}
}

func instanceKey(instanceID string) string {
	return instanceKeyPrefix + instanceID
}

// LoadInstance returns the durable record for instanceID, or nil if it
// has never run.
func (e *Engine) LoadInstance(ctx context.Context, instanceID string) (*model.Instance, error) {
	data, ok, err := e.store.Get(ctx, instanceKey(instanceID))
	if err != nil {
		return nil, model.NewStorageError("workflow.LoadInstance", err, true)
	}
	if !ok {
		return nil, nil
	}
	var inst model.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, model.NewStorageError("workflow.LoadInstance:unmarshal", err, true)
	}
	return &inst, nil
}

func (e *Engine) saveInstance(ctx context.Context, inst *model.Instance) error {
	inst.UpdatedAt = time.Now()
	data, err := json.Marshal(inst)
	if err != nil {
		return model.NewStorageError("workflow.saveInstance:marshal", err, true)
	}
	if err := e.store.Set(ctx, instanceKey(inst.InstanceID), data, 0); err != nil {
		return model.NewStorageError("workflow.saveInstance:set", err, true)
	}
	return nil
}

// Start begins or resumes instanceID of the given workflowType, running
// steps in order. A step already recorded successful in a prior run is
// replayed (its stored output returned) rather than re-executed. Progress
// events are emitted at workflow start, per step, and at the terminal
// outcome.
func (e *Engine) Start(ctx context.Context, instanceID, workflowType string, params interface{}, steps []Step) (*model.Instance, error) {
	inst, err := e.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		inst = &model.Instance{
			InstanceID:   instanceID,
			WorkflowType: workflowType,
			Parameters:   params,
			Status:       model.WorkflowRunning,
			StartedAt:    time.Now(),
		}
		e.events.Append(ctx, instanceID, "workflow:started", nil)
	} else if inst.Status.IsTerminal() {
		return inst, nil
	} else {
		inst.Status = model.WorkflowRunning
	}

	if e.metrics != nil {
		e.metrics.InstancesActive.Inc()
		defer e.metrics.InstancesActive.Dec()
	}

	total := len(steps)
	for i, step := range steps {
		inst.CurrentStep = step.Name
		record := inst.StepByName(step.Name)
		if record != nil && record.Succeeded() {
			continue
		}

		e.events.Append(ctx, instanceID, "step:started", map[string]interface{}{"step": step.Name})
		stepStart := time.Now()
		output, attempts, runErr := e.runWithRetry(ctx, step)
		now := time.Now()
		e.recordStep(workflowType, step.Name, stepStart, runErr == nil)

		if record == nil {
			inst.Steps = append(inst.Steps, model.StepRecord{Name: step.Name, StartedAt: now})
			record = &inst.Steps[len(inst.Steps)-1]
		}
		record.Attempts += attempts
		record.CompletedAt = &now

		if runErr != nil {
			record.Error = runErr.Error()
			inst.Status = model.WorkflowErrored
			inst.Error = fmt.Sprintf("step %q failed: %v", step.Name, runErr)
			e.events.Append(ctx, instanceID, "step:failed", map[string]interface{}{"step": step.Name, "error": runErr.Error()})
			e.events.Append(ctx, instanceID, "workflow:failed", map[string]interface{}{"error": inst.Error})
			if saveErr := e.saveInstance(ctx, inst); saveErr != nil {
				return nil, saveErr
			}
			return inst, model.NewWorkflowError(step.Name, runErr)
		}

		record.Output = output
		record.Error = ""
		inst.SetProgress(percentComplete(i+1, total))
		e.events.Append(ctx, instanceID, "step:completed", map[string]interface{}{"step": step.Name})
		e.events.Append(ctx, instanceID, "workflow:progress", map[string]interface{}{"percent": inst.Progress})

		if saveErr := e.saveInstance(ctx, inst); saveErr != nil {
			return nil, saveErr
		}

		select {
		case <-ctx.Done():
			inst.Status = model.WorkflowTerminated
			inst.Error = ctx.Err().Error()
			e.saveInstance(ctx, inst)
			return inst, ctx.Err()
		default:
		}
	}

	inst.Status = model.WorkflowComplete
	inst.CurrentStep = ""
	inst.SetProgress(100)
	e.events.Append(ctx, instanceID, "workflow:completed", nil)
	if err := e.saveInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *Engine) recordStep(workflowType, step string, start time.Time, ok bool) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	e.metrics.StepsTotal.WithLabelValues(workflowType, step, outcome).Inc()
	e.metrics.StepDuration.WithLabelValues(workflowType, step).Observe(time.Since(start).Seconds())
}

func percentComplete(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}

// runWithRetry executes step.Run, retrying per its RetryPolicy and
// honoring step.Timeout per attempt plus ctx's own cancellation.
func (e *Engine) runWithRetry(ctx context.Context, step Step) (interface{}, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= step.Retries.Limit; attempt++ {
		attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		output, err := step.Run(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return output, attempts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if attempt == step.Retries.Limit {
			break
		}

		delay := step.Retries.delayForAttempt(attempt + 1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			}
		}
	}
	return nil, attempts, lastErr
}

// Sleep records a wake-at timestamp for name under instanceID and blocks
// until it elapses or ctx is cancelled. On resume, if the recorded wake-at
// has already passed, it returns immediately instead of sleeping again.
func (e *Engine) Sleep(ctx context.Context, instanceID, name string, d time.Duration) error {
	key := instanceKeyPrefix + instanceID + "/sleep/" + name
	data, ok, err := e.store.Get(ctx, key)
	var wakeAt time.Time
	if ok && err == nil {
		if parsed, perr := time.Parse(time.RFC3339Nano, string(data)); perr == nil {
			wakeAt = parsed
		}
	}
	if wakeAt.IsZero() {
		wakeAt = time.Now().Add(d)
		e.store.Set(ctx, key, []byte(wakeAt.Format(time.RFC3339Nano)), d+time.Hour)
	}

	remaining := time.Until(wakeAt)
	if remaining <= 0 {
		return nil
	}
	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the recent progress event log for instanceID.
func (e *Engine) Events(ctx context.Context, instanceID string, limit int) ([]Event, error) {
	return e.events.Recent(ctx, instanceID, limit)
}

// NewInstanceID generates a fresh instance identifier.
func NewInstanceID() string {
	return uuid.NewString()
}

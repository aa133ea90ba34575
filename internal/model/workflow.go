package model

import "time"

// WorkflowStatus is the lifecycle state of a WorkflowInstance.
type WorkflowStatus string

const (
	WorkflowQueued     WorkflowStatus = "queued"
	WorkflowRunning    WorkflowStatus = "running"
	WorkflowComplete   WorkflowStatus = "complete"
	WorkflowErrored    WorkflowStatus = "errored"
	WorkflowTerminated WorkflowStatus = "terminated"
)

// IsTerminal reports whether s is one of the immutable terminal statuses.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowComplete || s == WorkflowErrored || s == WorkflowTerminated
}

// StepRecord is one step's durable execution record.
// Invariant: a step with a non-nil Output is never re-executed on resume.
type StepRecord struct {
	Name        string      `json:"name"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Attempts    int         `json:"attempts"`
	Output      interface{} `json:"output,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Succeeded reports whether this step recorded a durable, replayable
// output.
func (s *StepRecord) Succeeded() bool {
	return s != nil && s.CompletedAt != nil && s.Error == ""
}

// Instance is the durable record of one workflow run.
// Invariants: Progress is monotonically non-decreasing; a Status once
// terminal is never mutated again.
type Instance struct {
	InstanceID   string         `json:"instance_id"`
	WorkflowType string         `json:"workflow_type"`
	Parameters   interface{}    `json:"parameters,omitempty"`
	Steps        []StepRecord   `json:"steps"`
	Status       WorkflowStatus `json:"status"`
	CurrentStep  string         `json:"current_step,omitempty"`
	Progress     int            `json:"progress"`
	StartedAt    time.Time      `json:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Error        string         `json:"error,omitempty"`
}

// StepByName returns the recorded StepRecord for name, or nil if the step
// has never run in this instance.
func (i *Instance) StepByName(name string) *StepRecord {
	for idx := range i.Steps {
		if i.Steps[idx].Name == name {
			return &i.Steps[idx]
		}
	}
	return nil
}

// SetProgress advances Progress, clamping to the monotonic-non-decreasing
// invariant: a lower value than what's already recorded is ignored rather
// than silently accepted.
func (i *Instance) SetProgress(percent int) {
	if percent > i.Progress {
		i.Progress = percent
	}
}

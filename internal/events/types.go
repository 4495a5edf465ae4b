package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicRun    = "run"
	TopicWorker = "worker"
)

// Event type constants
const (
	EventTypeRunCreated    = "run.created"
	EventTypeRunFinished   = "run.finished"
	EventTypeWorkerStarted = "worker.started"
	EventTypeWorkerManual  = "worker.manual"
	EventTypeWorkerFailed  = "worker.failed"
	EventTypeWorkerExited  = "worker.exited"
)

// RunCreatedEvent is published once the run directory and the initial
// manifest exist.
type RunCreatedEvent struct {
	RunID           string
	OrchID          string
	RunDir          string
	Model           string
	ReasoningEffort string
	DryRun          bool
	Timestamp       time.Time
}

func (e RunCreatedEvent) EventType() string { return EventTypeRunCreated }
func (e RunCreatedEvent) TaskID() string    { return "" }

// RunFinishedEvent is published when dispatch returns, after wait mode if any.
type RunFinishedEvent struct {
	RunID     string
	Started   int
	Manual    int
	Failed    int
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }

// WorkerStartedEvent is published when a worker process launched, or would
// have in dry-run (PID 0).
type WorkerStartedEvent struct {
	RunID     string
	ID        string
	Engine    string
	PID       int
	LogFile   string
	DryRun    bool
	Timestamp time.Time
}

func (e WorkerStartedEvent) EventType() string { return EventTypeWorkerStarted }
func (e WorkerStartedEvent) TaskID() string    { return e.ID }

// WorkerManualEvent is published when a worker is assigned to a human.
type WorkerManualEvent struct {
	RunID     string
	ID        string
	Engine    string
	Reason    string
	Timestamp time.Time
}

func (e WorkerManualEvent) EventType() string { return EventTypeWorkerManual }
func (e WorkerManualEvent) TaskID() string    { return e.ID }

// WorkerFailedEvent is published when a worker could not be launched.
type WorkerFailedEvent struct {
	RunID     string
	ID        string
	Engine    string
	Err       error
	Timestamp time.Time
}

func (e WorkerFailedEvent) EventType() string { return EventTypeWorkerFailed }
func (e WorkerFailedEvent) TaskID() string    { return e.ID }

// WorkerExitedEvent is published in wait mode when a launched worker exits.
type WorkerExitedEvent struct {
	RunID     string
	ID        string
	PID       int
	ExitCode  int
	Timestamp time.Time
}

func (e WorkerExitedEvent) EventType() string { return EventTypeWorkerExited }
func (e WorkerExitedEvent) TaskID() string    { return e.ID }

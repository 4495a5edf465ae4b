package history

import (
	"context"
	"io"
	"log"

	"github.com/aristath/fleet/internal/events"
)

// Recorder persists dispatch events into a Store. History is auxiliary:
// write failures are logged and never reach the dispatcher.
type Recorder struct {
	store  Store
	logger *log.Logger
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Recorder{store: store, logger: logger}
}

// Run consumes events until ch is closed or ctx is done.
func (r *Recorder) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Record(ctx, ev); err != nil {
				r.logger.Printf("[WARN] history: %s %s: %v", ev.EventType(), ev.TaskID(), err)
			}
		}
	}
}

// Record persists one event. Unknown event types are ignored.
func (r *Recorder) Record(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.RunCreatedEvent:
		return r.store.RecordRun(ctx, Run{
			RunID:           e.RunID,
			OrchID:          e.OrchID,
			RunDir:          e.RunDir,
			Model:           e.Model,
			ReasoningEffort: e.ReasoningEffort,
			DryRun:          e.DryRun,
			CreatedAt:       e.Timestamp,
		})
	case events.RunFinishedEvent:
		return r.store.FinishRun(ctx, e.RunID, e.Timestamp)
	case events.WorkerStartedEvent:
		var pid *int
		if e.PID > 0 {
			pid = &e.PID
		}
		return r.store.RecordLaunch(ctx, Launch{
			RunID: e.RunID, TaskID: e.ID, Engine: e.Engine, Outcome: OutcomeStarted,
			PID: pid, Detail: e.LogFile, RecordedAt: e.Timestamp,
		})
	case events.WorkerManualEvent:
		return r.store.RecordLaunch(ctx, Launch{
			RunID: e.RunID, TaskID: e.ID, Engine: e.Engine, Outcome: OutcomeManual,
			Detail: e.Reason, RecordedAt: e.Timestamp,
		})
	case events.WorkerFailedEvent:
		detail := ""
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return r.store.RecordLaunch(ctx, Launch{
			RunID: e.RunID, TaskID: e.ID, Engine: e.Engine, Outcome: OutcomeFailed,
			Detail: detail, RecordedAt: e.Timestamp,
		})
	case events.WorkerExitedEvent:
		pid, code := e.PID, e.ExitCode
		return r.store.RecordLaunch(ctx, Launch{
			RunID: e.RunID, TaskID: e.ID, Outcome: OutcomeExited,
			PID: &pid, ExitCode: &code, RecordedAt: e.Timestamp,
		})
	}
	return nil
}

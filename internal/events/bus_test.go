package events

import (
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicWorker, 10)
	bus.Publish(TopicWorker, WorkerStartedEvent{RunID: "r1", ID: "WEB-T1", PID: 42, Timestamp: time.Now()})

	got := receive(t, ch)
	if got.TaskID() != "WEB-T1" {
		t.Errorf("expected task ID 'WEB-T1', got '%s'", got.TaskID())
	}
	if got.EventType() != EventTypeWorkerStarted {
		t.Errorf("expected event type '%s', got '%s'", EventTypeWorkerStarted, got.EventType())
	}
}

// TestTopicsAreIsolated verifies subscribers only see their topic.
func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	runCh := bus.Subscribe(TopicRun, 10)
	workerCh := bus.Subscribe(TopicWorker, 10)

	bus.Publish(TopicRun, RunCreatedEvent{RunID: "r1"})

	if got := receive(t, runCh); got.EventType() != EventTypeRunCreated {
		t.Errorf("run subscriber got %s", got.EventType())
	}
	select {
	case ev := <-workerCh:
		t.Errorf("worker subscriber received %s", ev.EventType())
	default:
	}
}

// TestSubscribeAll verifies all-topic subscribers see every event in order.
func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)
	bus.Publish(TopicRun, RunCreatedEvent{RunID: "r1"})
	bus.Publish(TopicWorker, WorkerManualEvent{ID: "T1", Reason: "manual engine"})
	bus.Publish(TopicWorker, WorkerFailedEvent{ID: "T2", Err: errors.New("boom")})
	bus.Publish(TopicWorker, WorkerExitedEvent{ID: "T3", ExitCode: 1})
	bus.Publish(TopicRun, RunFinishedEvent{RunID: "r1"})

	want := []string{EventTypeRunCreated, EventTypeWorkerManual, EventTypeWorkerFailed, EventTypeWorkerExited, EventTypeRunFinished}
	for i, w := range want {
		if got := receive(t, all).EventType(); got != w {
			t.Errorf("event %d = %s, want %s", i, got, w)
		}
	}
}

// TestNonBlockingSendCountsDrops verifies a full subscriber never blocks Publish.
func TestNonBlockingSendCountsDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Subscribe(TopicWorker, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TopicWorker, WorkerStartedEvent{ID: "T"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if bus.Dropped() != 9 {
		t.Errorf("Dropped = %d, want 9", bus.Dropped())
	}
}

// TestCloseSignalsSubscribers verifies Close closes channels and is idempotent.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicRun, 1)
	all := bus.SubscribeAll(1)

	bus.Close()
	bus.Close()

	for _, c := range []<-chan Event{ch, all} {
		if _, ok := <-c; ok {
			t.Error("expected closed channel")
		}
	}

	// Publishing and subscribing after close are safe.
	bus.Publish(TopicRun, RunCreatedEvent{})
	if _, ok := <-bus.Subscribe(TopicRun, 1); ok {
		t.Error("late subscription should be closed")
	}
}

// TestNilBusPublish verifies a nil bus can be published to.
func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(TopicRun, RunCreatedEvent{})
}

package process

import (
	"errors"
	"os/exec"
	"sync"
)

// Exit records a tracked process that finished.
type Exit struct {
	TaskID string
	PID    int
	Code   int   // -1 when the exit status is unknown
	Err    error // Wait error other than a non-zero exit
}

// Tracker holds launched workers until they exit, so a waiting dispatcher
// can reap them and report exit codes.
//
// Usage pattern:
//
//	t := NewTracker()
//	_ = cmd.Start()
//	t.Track("WEB-T1", cmd)
//	for t.Count() > 0 {
//		for _, e := range t.Reap() { ... }
//		time.Sleep(time.Second)
//	}
type Tracker struct {
	mu      sync.Mutex
	running map[int]string // pid -> task id
	exited  []Exit
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		running: make(map[int]string),
	}
}

// Track registers a started command and reaps it in the background.
// Commands that were never started are ignored.
func (t *Tracker) Track(taskID string, cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	t.mu.Lock()
	t.running[pid] = taskID
	t.mu.Unlock()

	go func() {
		err := cmd.Wait()
		exit := Exit{TaskID: taskID, PID: pid, Code: -1}
		if cmd.ProcessState != nil {
			exit.Code = cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			exit.Err = err
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.running, pid)
		t.exited = append(t.exited, exit)
	}()
}

// Reap returns the processes that exited since the previous call.
func (t *Tracker) Reap() []Exit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.exited
	t.exited = nil
	return out
}

// Count returns the number of tracked processes still running.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

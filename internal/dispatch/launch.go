package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/fleet/internal/backend"
	"github.com/aristath/fleet/internal/process"
)

// Launcher starts a worker process with combined output redirected to
// logPath. The returned command has been started.
type Launcher interface {
	Launch(cmd backend.Command, workdir, logPath string) (*exec.Cmd, error)
}

// ProcessLauncher launches workers as detached process groups.
type ProcessLauncher struct{}

func (ProcessLauncher) Launch(c backend.Command, workdir, logPath string) (*exec.Cmd, error) {
	if len(c.Args) == 0 {
		return nil, backend.ErrEmptyCommand
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	// The child holds its own descriptor after Start.
	defer logFile.Close()

	cmd := process.NewCommand(c.Args[0], c.Args[1:]...)
	cmd.Dir = workdir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	var stdin io.WriteCloser
	if c.Stdin != "" {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("creating stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if stdin != nil {
		_, werr := io.WriteString(stdin, c.Stdin)
		cerr := stdin.Close()
		if werr != nil {
			return cmd, fmt.Errorf("writing prompt to stdin: %w", werr)
		}
		if cerr != nil {
			return cmd, fmt.Errorf("closing stdin: %w", cerr)
		}
	}
	return cmd, nil
}

// RetryConfig configures how transient launch failures are retried.
type RetryConfig struct {
	InitialInterval time.Duration // Initial retry interval (default 50ms)
	MaxInterval     time.Duration // Maximum retry interval (default 500ms)
	MaxElapsedTime  time.Duration // Give up after (default 3s)
}

// DefaultRetryConfig returns the default launch retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxElapsedTime:  3 * time.Second,
	}
}

// BreakerRegistry holds one launch circuit breaker per engine. After
// repeated launch failures on an engine its remaining workers fail fast.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *log.Logger
	tripAt   uint32
}

// NewBreakerRegistry creates a registry whose breakers open after tripAt
// consecutive failures.
func NewBreakerRegistry(logger *log.Logger, tripAt uint32) *BreakerRegistry {
	if tripAt == 0 {
		tripAt = 3
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
		tripAt:   tripAt,
	}
}

// Get returns the breaker for engine, creating it on first use.
func (r *BreakerRegistry) Get(engine string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[engine]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        engine,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.tripAt
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Printf("[INFO] launch breaker %q: %s -> %s", name, from, to)
		},
	})
	r.breakers[engine] = cb
	return cb
}

// launch starts c through the engine's breaker, retrying transient start
// failures with exponential backoff.
func launch(l Launcher, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig, c backend.Command, workdir, logPath string) (*exec.Cmd, error) {
	var started *exec.Cmd

	operation := func() error {
		result, err := cb.Execute(func() (interface{}, error) {
			return l.Launch(c, workdir, logPath)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("launch circuit open for %s: %w", cb.Name(), err))
			}
			// A started process must not be launched twice.
			if cmd, ok := result.(*exec.Cmd); ok && cmd != nil && cmd.Process != nil {
				started = cmd
				return backoff.Permanent(err)
			}
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		started = result.(*exec.Cmd)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime

	err := backoff.Retry(operation, policy)
	return started, err
}

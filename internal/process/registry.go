// Package process observes operating-system processes: a TTL-cached liveness
// snapshot, per-pid resource metrics and command-line listing.
package process

import (
	"math"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL = 2 * time.Second        // Snapshot lifetime
	MinTTL     = 200 * time.Millisecond // Shorter TTLs are raised to this
)

// Sample is one raw resource reading of a process.
type Sample struct {
	CPUSeconds float64 // Cumulative user+system CPU time
	RSSBytes   uint64
	Threads    int
}

// Lister is the operating-system view the registry reads from.
type Lister interface {
	Pids() ([]int32, error)
	Sample(pid int32) (Sample, error)
	CommandLine(pid int32) (string, error)
}

// Metrics is a worker's resource usage derived from two consecutive samples.
type Metrics struct {
	CPUPercent float64 `json:"cpu"`    // Share of all cores, [0,100], 2 decimals
	RSSMB      float64 `json:"rss_mb"` // Resident memory in MiB, 1 decimal
	Threads    int     `json:"threads"`
}

// Info is one entry of the process listing.
type Info struct {
	PID         int
	CommandLine string
}

// RegistryConfig configures a Registry. Zero fields take defaults.
type RegistryConfig struct {
	TTL    time.Duration
	Lister Lister
	Now    func() time.Time
	Cores  int
}

type baseline struct {
	cpu  float64
	wall time.Time
}

// Registry answers liveness and metrics queries for pids. It is safe for
// concurrent use; the snapshot and CPU baselines are shared by all callers.
type Registry struct {
	mu        sync.Mutex
	lister    Lister
	ttl       time.Duration
	now       func() time.Time
	cores     int
	pids      map[int]struct{}
	takenAt   time.Time
	baselines map[int]baseline
}

// NewRegistry creates a registry. The default lister reads the host's
// process table.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		lister:    cfg.Lister,
		ttl:       cfg.TTL,
		now:       cfg.Now,
		cores:     cfg.Cores,
		baselines: make(map[int]baseline),
	}
	if r.lister == nil {
		r.lister = SystemLister{}
	}
	if r.ttl == 0 {
		r.ttl = DefaultTTL
	}
	if r.ttl < MinTTL {
		r.ttl = MinTTL
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.cores <= 0 {
		r.cores = runtime.NumCPU()
	}
	return r
}

// snapshot returns the pid set, refreshing it when older than the TTL.
// Enumeration failures yield an empty set. Caller holds r.mu.
func (r *Registry) snapshot() map[int]struct{} {
	now := r.now()
	if r.pids != nil && now.Sub(r.takenAt) < r.ttl {
		return r.pids
	}
	set := make(map[int]struct{})
	if pids, err := r.lister.Pids(); err == nil {
		for _, pid := range pids {
			set[int(pid)] = struct{}{}
		}
	}
	r.pids = set
	r.takenAt = now
	return set
}

// IsAlive reports whether pid appears in the current snapshot.
func (r *Registry) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.snapshot()[pid]
	if !ok {
		delete(r.baselines, pid)
	}
	return ok
}

// Metrics samples pid. The first observation of a pid reports 0% CPU; later
// ones report usage since the previous call. Dead or unreadable processes
// report zero metrics.
func (r *Registry) Metrics(pid int) Metrics {
	if pid <= 0 {
		return Metrics{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.snapshot()[pid]; !ok {
		delete(r.baselines, pid)
		return Metrics{}
	}
	s, err := r.lister.Sample(int32(pid))
	if err != nil {
		delete(r.baselines, pid)
		return Metrics{}
	}

	now := r.now()
	var pct float64
	if prev, ok := r.baselines[pid]; ok {
		wall := now.Sub(prev.wall).Seconds()
		if wall > 0 {
			pct = (s.CPUSeconds - prev.cpu) / (wall * float64(r.cores)) * 100
		}
	}
	r.baselines[pid] = baseline{cpu: s.CPUSeconds, wall: now}

	pct = math.Max(0, math.Min(100, pct))
	return Metrics{
		CPUPercent: round(pct, 2),
		RSSMB:      round(float64(s.RSSBytes)/(1024*1024), 1),
		Threads:    s.Threads,
	}
}

// List returns every readable process with its command line.
func (r *Registry) List() []Info {
	pids, err := r.lister.Pids()
	if err != nil {
		return nil
	}
	out := make([]Info, 0, len(pids))
	for _, pid := range pids {
		cmdline, err := r.lister.CommandLine(pid)
		if err != nil {
			continue
		}
		out = append(out, Info{PID: int(pid), CommandLine: cmdline})
	}
	return out
}

// FindByCommandLine returns processes whose command line contains substr,
// compared case-insensitively.
func (r *Registry) FindByCommandLine(substr string) []Info {
	needle := strings.ToLower(substr)
	var out []Info
	for _, info := range r.List() {
		if strings.Contains(strings.ToLower(info.CommandLine), needle) {
			out = append(out, info)
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

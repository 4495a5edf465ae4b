package process

import (
	gops "github.com/shirou/gopsutil/v4/process"
)

// SystemLister reads the host process table through gopsutil.
type SystemLister struct{}

func (SystemLister) Pids() ([]int32, error) {
	return gops.Pids()
}

func (SystemLister) Sample(pid int32) (Sample, error) {
	p, err := gops.NewProcess(pid)
	if err != nil {
		return Sample{}, err
	}
	times, err := p.Times()
	if err != nil {
		return Sample{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return Sample{}, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		// Thread counts are unavailable on some platforms.
		threads = 0
	}
	return Sample{
		CPUSeconds: times.User + times.System,
		RSSBytes:   mem.RSS,
		Threads:    int(threads),
	}, nil
}

func (SystemLister) CommandLine(pid int32) (string, error) {
	p, err := gops.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return p.Cmdline()
}

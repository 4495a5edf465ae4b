//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// NewCommand creates an exec.Cmd in its own process group, so a worker
// outlives the dispatcher and its subprocess tree can be signalled as a unit.
func NewCommand(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

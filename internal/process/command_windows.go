//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// NewCommand creates an exec.Cmd in a new process group.
func NewCommand(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
	return cmd
}

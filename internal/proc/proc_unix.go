//go:build !windows

package proc

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Alive reports whether pid names a running process. A process owned by
// another user still counts.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Terminate sends SIGTERM.
func Terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// Detach makes cmd outlive its parent: a new session with no controlling
// terminal.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

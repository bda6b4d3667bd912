// Package proc wraps the process facilities browserctl needs from the OS:
// liveness probes, termination and detached spawning.
package proc

import (
	"errors"
	"os"
)

// ErrSignalsUnsupported is returned by Terminate where the OS has no
// graceful termination signal.
var ErrSignalsUnsupported = errors.New("termination signals are not supported on this platform")

// Kill forcibly ends pid.
func Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

//go:build unix

package lock

import (
	"errors"
	"syscall"
)

// processAlive sends signal 0: ESRCH means the process is gone, anything
// else (including EPERM) means it exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || !errors.Is(err, syscall.ESRCH)
}

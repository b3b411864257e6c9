//go:build !unix

package lock

import "os"

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// FindProcess opens a handle on Windows and fails for unknown pids
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

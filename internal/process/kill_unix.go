//go:build !windows

// Package process terminates browser process trees left by the renderer.
package process

import "syscall"

// KillProcessGroup sends SIGKILL to the process group led by pid, taking
// down Chrome's helper processes with it. pid must be positive.
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return syscall.EINVAL
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}

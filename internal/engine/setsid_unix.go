//go:build !windows

package engine

import (
	"os/exec"
	"syscall"
)

// sessionAttr returns SysProcAttr that places the engine in its own session,
// preventing it from receiving the parent's terminal signals.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// killGroup sends SIGKILL to the engine's process group so helper threads
// and children die with it.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

//go:build windows

package engine

import (
	"os/exec"
	"syscall"
)

// sessionAttr returns an empty SysProcAttr on Windows where Setsid is not
// available.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// killGroup kills the engine process directly; Windows has no process
// groups in the POSIX sense.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

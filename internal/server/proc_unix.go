//go:build unix

package server

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own group so the whole tree can be signalled.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals every process in the group led by pid. An empty group is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func terminateGroup(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func killGroup(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

// groupAlive reports whether any process of the group led by pid remains.
func groupAlive(pid int) bool {
	return syscall.Kill(-pid, 0) == nil
}

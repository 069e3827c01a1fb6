//go:build !unix

package server

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Without process groups only the direct child can be signalled.
func terminateGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

func killGroup(pid int) error {
	return terminateGroup(pid)
}

// The direct child is reaped by Wait, so nothing else can be left behind.
func groupAlive(pid int) bool {
	return false
}

//go:build !windows

package runner

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"
)

// requestGraceful asks the node to stop with SIGTERM.
func (h *processHandle) requestGraceful(ctx context.Context) error {
	return unix.Kill(h.pid, unix.SIGTERM)
}

// detachSysProcAttr puts a daemonized node into its own session so it
// outlives the manager process and its terminal.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

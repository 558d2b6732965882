//go:build windows

package runner

import (
	"context"
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// requestGraceful asks the node to stop through its REST control endpoint;
// there is no signal delivery to a detached process on windows.
func (h *processHandle) requestGraceful(ctx context.Context) error {
	if h.restPort == 0 {
		return fmt.Errorf("no control endpoint recorded for pid %d", h.pid)
	}
	return requestShutdown(ctx, h.client, h.restPort)
}

// detachSysProcAttr detaches a daemonized node from the manager's console
// and process group.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
}

package runner

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// processHandle is the platform-neutral view of a managed node process.
// Graceful termination is platform-specific (signal on unix, control
// endpoint call on windows); liveness and forced kill are shared.
type processHandle struct {
	pid      int
	binary   string
	restPort int
	client   *http.Client
}

// isAlive reports whether the pid is running and still owned by the node
// binary we launched. A recycled pid belonging to another executable counts
// as dead, so stale run records heal instead of blocking a channel.
func (h *processHandle) isAlive() bool {
	p, err := process.NewProcess(int32(h.pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return false
	}
	if h.binary == "" {
		return true
	}
	name, err := p.Name()
	if err != nil {
		// Cannot inspect the process; assume the record is honest.
		return true
	}
	want := filepath.Base(h.binary)
	// Name may be truncated by the kernel (comm is 15 bytes on linux).
	return name == want || strings.HasPrefix(want, name)
}

func (h *processHandle) forceTerminate() error {
	p, err := os.FindProcess(h.pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

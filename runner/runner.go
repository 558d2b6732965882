// Package runner starts, tracks, queries and stops the managed node
// process, one per channel. State transitions are Absent -> Starting ->
// Running -> Stopping -> Absent, with the durable run record as the evidence
// of a Running channel. A stale record whose pid is dead (or recycled by
// another program) is treated as Absent and cleaned up.
//
// The existence check and the launch are not atomic; two jorup invocations
// racing on the same channel can in principle both start a node. This is an
// accepted limitation for a single-user local tool — the record writes
// themselves are lock-guarded and cannot corrupt.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/input-output-hk/jorup/home"
)

var (
	// ErrAlreadyRunning means a live node already owns the channel.
	ErrAlreadyRunning = errors.New("node already running")
	// ErrNotRunning means no live node owns the channel.
	ErrNotRunning = errors.New("no running node")
)

const (
	defaultShutdownTimeout = 5 * time.Second
	defaultStartupGrace    = 2 * time.Second
	pollInterval           = 200 * time.Millisecond
)

// Controller owns the process lifecycle for all channels under one home.
type Controller struct {
	Home   *home.Dir
	Client *http.Client

	// Clock drives the shutdown timeout and daemon startup grace; tests
	// substitute a virtual clock.
	Clock           clock.Clock
	ShutdownTimeout time.Duration
	StartupGrace    time.Duration
}

// NewController returns a controller with production timing.
func NewController(h *home.Dir) *Controller {
	return &Controller{
		Home:            h,
		Client:          &http.Client{Timeout: 10 * time.Second},
		Clock:           clock.NewDefaultClock(),
		ShutdownTimeout: defaultShutdownTimeout,
		StartupGrace:    defaultStartupGrace,
	}
}

// StartSpec describes one node launch.
type StartSpec struct {
	Channel  string
	Version  string
	Binary   string
	Args     []string
	RestPort int
	Daemon   bool
}

// Info is the answer to an info query: the run record plus what the node's
// control endpoint reports.
type Info struct {
	Record *home.RunRecord
	Stats  map[string]interface{}
}

func (c *Controller) handleFor(rec *home.RunRecord) *processHandle {
	return &processHandle{
		pid:      rec.PID,
		binary:   rec.Binary,
		restPort: rec.RestPort,
		client:   c.Client,
	}
}

// liveRecord returns the channel's run record if its process is actually
// alive. A dead record is removed on the spot (self-healing read).
func (c *Controller) liveRecord(channel string) (*home.RunRecord, error) {
	rec, err := c.Home.ReadRunRecord(channel)
	if err != nil || rec == nil {
		return nil, err
	}
	if c.handleFor(rec).isAlive() {
		return rec, nil
	}
	log.Printf("removing stale run record for channel %s (pid %d is gone)", channel, rec.PID)
	if err := c.Home.RemoveRunRecord(channel); err != nil {
		return nil, err
	}
	return nil, nil
}

// Start launches the node. Foreground mode blocks until the process exits
// and removes the run record even on abnormal exit, which is reported, not
// retried. Daemon mode detaches the child, persists the record once the
// launch is confirmed and returns without waiting for exit.
func (c *Controller) Start(ctx context.Context, spec StartSpec) (*home.RunRecord, error) {
	existing, err := c.liveRecord(spec.Channel)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w on channel %s: pid %d", ErrAlreadyRunning, spec.Channel, existing.PID)
	}

	channelDir, err := c.Home.ChannelDir(spec.Channel)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = channelDir

	if spec.Daemon {
		return c.startDaemon(ctx, spec, cmd)
	}
	return c.runForeground(spec, cmd)
}

func (c *Controller) runForeground(spec StartSpec, cmd *exec.Cmd) (*home.RunRecord, error) {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	rec := c.newRecord(spec, cmd.Process.Pid)
	if err := c.Home.WriteRunRecord(rec); err != nil {
		log.Printf("cannot persist run record: %v", err)
	}

	waitErr := cmd.Wait()
	if err := c.Home.RemoveRunRecord(spec.Channel); err != nil {
		log.Printf("cannot remove run record: %v", err)
	}
	if waitErr != nil {
		return &rec, fmt.Errorf("node exited abnormally: %w", waitErr)
	}
	return &rec, nil
}

func (c *Controller) startDaemon(ctx context.Context, spec StartSpec, cmd *exec.Cmd) (*home.RunRecord, error) {
	logFile, err := os.OpenFile(c.Home.NodeLogFile(spec.Channel), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open node log: %w", err)
	}
	defer logFile.Close()

	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachSysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	rec := c.newRecord(spec, cmd.Process.Pid)
	if err := c.Home.WriteRunRecord(rec); err != nil {
		return nil, err
	}

	// Give the child a grace period to fail fast on startup errors; after
	// that the manager exits and the node lives on its own.
	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case waitErr := <-waitDone:
		_ = c.Home.RemoveRunRecord(spec.Channel)
		return nil, fmt.Errorf("node exited during startup (see %s): %v",
			c.Home.NodeLogFile(spec.Channel), waitErr)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		_ = c.Home.RemoveRunRecord(spec.Channel)
		return nil, ctx.Err()
	case <-c.Clock.TickAfter(c.StartupGrace):
	}
	return &rec, nil
}

func (c *Controller) newRecord(spec StartSpec, pid int) home.RunRecord {
	return home.RunRecord{
		Channel:   spec.Channel,
		Version:   spec.Version,
		PID:       pid,
		Binary:    spec.Binary,
		RestPort:  spec.RestPort,
		StartedAt: time.Now().UTC(),
	}
}

// NodeInfo queries the running node's control endpoint.
func (c *Controller) NodeInfo(ctx context.Context, channel string) (*Info, error) {
	rec, err := c.liveRecord(channel)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w on channel %s", ErrNotRunning, channel)
	}
	if rec.RestPort == 0 {
		return &Info{Record: rec}, nil
	}
	stats, err := nodeStats(ctx, c.Client, rec.RestPort)
	if err != nil {
		return nil, err
	}
	return &Info{Record: rec, Stats: stats}, nil
}

// Shutdown requests graceful termination and waits up to the configured
// timeout before escalating to a forced kill. A forced shutdown is reported
// through the return value, not as an error; the run record is removed
// either way.
func (c *Controller) Shutdown(ctx context.Context, channel string) (forced bool, err error) {
	rec, err := c.liveRecord(channel)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, fmt.Errorf("%w on channel %s", ErrNotRunning, channel)
	}

	handle := c.handleFor(rec)
	if err := handle.requestGraceful(ctx); err != nil {
		log.Printf("graceful stop request failed, will escalate: %v", err)
	}

	if !c.waitForExit(ctx, handle) {
		log.Printf("node on channel %s did not stop within %s, killing pid %d",
			channel, c.ShutdownTimeout, rec.PID)
		if err := handle.forceTerminate(); err != nil {
			return true, fmt.Errorf("force terminate pid %d: %w", rec.PID, err)
		}
		forced = true
	}

	if err := c.Home.RemoveRunRecord(channel); err != nil {
		return forced, err
	}
	return forced, nil
}

func (c *Controller) waitForExit(ctx context.Context, handle *processHandle) bool {
	deadline := c.Clock.Now().Add(c.ShutdownTimeout)
	for {
		if !handle.isAlive() {
			return true
		}
		if !c.Clock.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-c.Clock.TickAfter(pollInterval):
		}
	}
}

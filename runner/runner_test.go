//go:build !windows

package runner

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/jorup/home"
)

func testController(t *testing.T) (*Controller, *home.Dir) {
	t.Helper()
	h, err := home.Open(t.TempDir())
	require.NoError(t, err)
	c := NewController(h)
	c.StartupGrace = 100 * time.Millisecond
	c.ShutdownTimeout = 5 * time.Second
	return c, h
}

// writeFakeNode drops an executable script named like the node binary so the
// liveness check's executable-name verification holds.
func writeFakeNode(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jormungandr")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func startDaemonNode(t *testing.T, c *Controller, script string) *home.RunRecord {
	t.Helper()
	rec, err := c.Start(context.Background(), StartSpec{
		Channel: "itn",
		Version: "1.2.0",
		Binary:  writeFakeNode(t, script),
		Daemon:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if p, err := os.FindProcess(rec.PID); err == nil {
			_ = p.Kill()
		}
	})
	return rec
}

func TestStartDaemonCreatesRunRecord(t *testing.T) {
	c, h := testController(t)
	rec := startDaemonNode(t, c, "sleep 30")

	stored, err := h.ReadRunRecord("itn")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rec.PID, stored.PID)
	assert.Equal(t, "1.2.0", stored.Version)
	assert.True(t, c.handleFor(stored).isAlive())
}

func TestSecondStartFailsWhileRunning(t *testing.T) {
	c, _ := testController(t)
	startDaemonNode(t, c, "sleep 30")

	_, err := c.Start(context.Background(), StartSpec{
		Channel: "itn",
		Version: "1.2.0",
		Binary:  writeFakeNode(t, "sleep 30"),
		Daemon:  true,
	})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartDaemonFailsFastOnStartupError(t *testing.T) {
	c, h := testController(t)
	_, err := c.Start(context.Background(), StartSpec{
		Channel: "itn",
		Version: "1.2.0",
		Binary:  writeFakeNode(t, "exit 1"),
		Daemon:  true,
	})
	require.Error(t, err)

	rec, recErr := h.ReadRunRecord("itn")
	require.NoError(t, recErr)
	assert.Nil(t, rec)
}

func TestShutdownGraceful(t *testing.T) {
	c, h := testController(t)
	startDaemonNode(t, c, "trap 'exit 0' TERM\nwhile true; do sleep 1; done")

	forced, err := c.Shutdown(context.Background(), "itn")
	require.NoError(t, err)
	assert.False(t, forced)

	rec, err := h.ReadRunRecord("itn")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = c.NodeInfo(context.Background(), "itn")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestShutdownEscalatesAfterTimeout(t *testing.T) {
	c, h := testController(t)
	startDaemonNode(t, c, "trap '' TERM\nwhile true; do sleep 1; done")

	// Swap the wall clock out only for the shutdown wait; the startup grace
	// above still needed real ticks.
	start := time.Now()
	tc := clock.NewTestClock(start)
	c.Clock = tc
	c.ShutdownTimeout = 5 * time.Second

	type result struct {
		forced bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		forced, err := c.Shutdown(context.Background(), "itn")
		done <- result{forced, err}
	}()

	// Let the controller enter its bounded wait, then blow past the
	// deadline on the virtual clock.
	time.Sleep(200 * time.Millisecond)
	tc.SetTime(start.Add(6 * time.Second))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.True(t, res.forced)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not finish")
	}

	rec, err := h.ReadRunRecord("itn")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestShutdownWithoutNode(t *testing.T) {
	c, _ := testController(t)
	_, err := c.Shutdown(context.Background(), "itn")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStaleRunRecordHeals(t *testing.T) {
	c, h := testController(t)

	// A process that is already gone.
	probe := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, probe.Run())
	deadPID := probe.ProcessState.Pid()

	require.NoError(t, h.WriteRunRecord(home.RunRecord{
		Channel: "itn", Version: "1.2.0", PID: deadPID, Binary: "/x/jormungandr",
	}))

	_, err := c.NodeInfo(context.Background(), "itn")
	assert.ErrorIs(t, err, ErrNotRunning)

	// The stale record was removed, so a start now goes through.
	rec, err := h.ReadRunRecord("itn")
	require.NoError(t, err)
	assert.Nil(t, rec)

	started := startDaemonNode(t, c, "sleep 30")
	assert.NotEqual(t, deadPID, started.PID)
}

func TestForegroundRemovesRecordOnAbnormalExit(t *testing.T) {
	c, h := testController(t)

	_, err := c.Start(context.Background(), StartSpec{
		Channel: "itn",
		Version: "1.2.0",
		Binary:  writeFakeNode(t, "exit 3"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")

	rec, recErr := h.ReadRunRecord("itn")
	require.NoError(t, recErr)
	assert.Nil(t, rec)
}

func TestNodeInfoQueriesControlEndpoint(t *testing.T) {
	c, h := testController(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/node/stats", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"state": "Running", "lastBlockHeight": "1200"})
	}))
	t.Cleanup(srv.Close)
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	// Our own pid is alive; leave Binary empty to skip the name check.
	require.NoError(t, h.WriteRunRecord(home.RunRecord{
		Channel: "itn", Version: "1.2.0", PID: os.Getpid(), RestPort: port,
	}))

	info, err := c.NodeInfo(context.Background(), "itn")
	require.NoError(t, err)
	assert.Equal(t, "Running", info.Stats["state"])
	assert.Equal(t, "1.2.0", info.Record.Version)
}

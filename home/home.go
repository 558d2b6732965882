// Package home owns the jorup home directory: its layout and the durable
// state kept there (installed-release registry, default selection, run
// records). All mutations go through a file lock so concurrent jorup
// invocations cannot interleave a partial write.
package home

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockRetryDelay = 100 * time.Millisecond
	lockWait       = 5 * time.Second
)

// ErrResourceBusy is returned when another jorup invocation holds the state
// lock for longer than the bounded wait.
var ErrResourceBusy = errors.New("jorup home is locked by another process")

// Dir is an opened jorup home directory.
type Dir struct {
	root string
}

// Open creates the home directory layout if needed and returns it.
func Open(root string) (*Dir, error) {
	if !filepath.IsAbs(root) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(wd, root)
	}
	d := &Dir{root: root}
	for _, dir := range []string{root, d.BinDir(), d.releaseRoot(), d.channelRoot(), d.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return d, nil
}

// DefaultRoot returns ~/.jorup.
func DefaultRoot() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".jorup"), nil
}

func (d *Dir) Root() string     { return d.root }
func (d *Dir) BinDir() string   { return filepath.Join(d.root, "bin") }
func (d *Dir) CacheDir() string { return filepath.Join(d.root, "cache") }

func (d *Dir) releaseRoot() string { return filepath.Join(d.root, "release") }
func (d *Dir) channelRoot() string { return filepath.Join(d.root, "channel") }

// ReleaseDir is the install directory for one (channel, version) pair. The
// name is deterministic so repeated installs of the same version land in the
// same place.
func (d *Dir) ReleaseDir(channel, version string) string {
	return filepath.Join(d.releaseRoot(), channel+"-"+version)
}

// ReleaseRoot exposes the parent of all install directories, used for
// staging unpacked archives before the final rename.
func (d *Dir) ReleaseRoot() string { return d.releaseRoot() }

// ChannelDir holds the per-channel node state: storage, rendered config,
// genesis hash, log and run record.
func (d *Dir) ChannelDir(channel string) (string, error) {
	dir := filepath.Join(d.channelRoot(), channel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create channel dir: %w", err)
	}
	return dir, nil
}

func (d *Dir) NodeConfigFile(channel string) string {
	return filepath.Join(d.channelRoot(), channel, "node-config.yaml")
}

func (d *Dir) NodeStorageDir(channel string) string {
	return filepath.Join(d.channelRoot(), channel, "node-storage")
}

func (d *Dir) NodeSecretFile(channel string) string {
	return filepath.Join(d.channelRoot(), channel, "node-secret.yaml")
}

func (d *Dir) GenesisHashFile(channel string) string {
	return filepath.Join(d.channelRoot(), channel, "genesis.block.hash")
}

func (d *Dir) NodeLogFile(channel string) string {
	return filepath.Join(d.channelRoot(), channel, "node.log")
}

func (d *Dir) runRecordFile(channel string) string {
	return filepath.Join(d.channelRoot(), channel, "run-record.json")
}

func (d *Dir) registryFile() string { return filepath.Join(d.root, "releases.json") }
func (d *Dir) defaultsFile() string { return filepath.Join(d.root, "defaults.json") }
func (d *Dir) lockFile() string     { return filepath.Join(d.root, ".lock") }

// withLock runs fn while holding the home-wide file lock, waiting a bounded
// period before giving up with ErrResourceBusy.
func (d *Dir) withLock(fn func() error) error {
	fl := flock.New(d.lockFile())
	ctx, cancel := context.WithTimeout(context.Background(), lockWait)
	defer cancel()

	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !ok {
		return ErrResourceBusy
	}
	defer fl.Unlock()

	return fn()
}

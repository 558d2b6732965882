// Package release materializes resolved releases onto local storage:
// download, checksum verification, unpack into a per-version directory and
// registration in the installed-release registry.
package release

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/input-output-hk/jorup/home"
	"github.com/input-output-hk/jorup/index"
)

// Platform is the artifact key for the running system.
func Platform() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

// NodeBinary is the file name of the managed node binary inside an install
// directory.
func NodeBinary() string {
	if runtime.GOOS == "windows" {
		return "jormungandr.exe"
	}
	return "jormungandr"
}

// IntegrityError reports a checksum mismatch on a downloaded artifact. The
// artifact is discarded and never installed.
type IntegrityError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: got %s expect %s", e.URL, e.Actual, e.Expected)
}

// Installer downloads and unpacks release artifacts for one platform.
type Installer struct {
	Home     *home.Dir
	Client   *http.Client
	Platform string
	archiver archiver
}

// NewInstaller returns an installer for the current platform.
func NewInstaller(h *home.Dir, client *http.Client) *Installer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Installer{
		Home:     h,
		Client:   client,
		Platform: Platform(),
		archiver: newArchiver(runtime.GOOS),
	}
}

// Install materializes rel locally and records it in the registry. It is
// idempotent: reinstalling the same version replaces the install directory,
// so a run interrupted part-way is repaired by simply retrying. The registry
// is only touched after the unpack fully succeeded.
func (ins *Installer) Install(ctx context.Context, rel *index.Release) (home.InstalledRelease, error) {
	var installed home.InstalledRelease

	artifact, ok := rel.Artifacts[ins.Platform]
	if !ok {
		return installed, fmt.Errorf("release %s has no artifact for %s", rel.Version, ins.Platform)
	}

	archive, err := ins.download(ctx, artifact)
	if err != nil {
		return installed, err
	}
	defer os.Remove(archive)

	// Unpack into a staging directory next to the final location, then
	// swap it in. A crash mid-unpack leaves only the staging dir behind.
	stage, err := os.MkdirTemp(ins.Home.ReleaseRoot(), ".staging-*")
	if err != nil {
		return installed, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	if err := ins.archiver.unpack(ctx, archive, stage); err != nil {
		return installed, fmt.Errorf("unpack %s: %w", artifact.URL, err)
	}

	ver := rel.SemVer().String()
	dest := ins.Home.ReleaseDir(rel.Channel, ver)
	if err := os.RemoveAll(dest); err != nil {
		return installed, fmt.Errorf("clear previous install: %w", err)
	}
	if err := os.Rename(stage, dest); err != nil {
		return installed, fmt.Errorf("move release into place: %w", err)
	}

	installed = home.InstalledRelease{
		Channel:     rel.Channel,
		Version:     ver,
		InstallDir:  dest,
		InstalledAt: time.Now().UTC(),
	}
	if err := ins.Home.RecordInstall(installed); err != nil {
		return installed, err
	}
	log.Printf("installed %s %s into %s", rel.Channel, ver, dest)
	return installed, nil
}

// download fetches the artifact to a temp file and verifies its checksum,
// hashing the stream as it is written.
func (ins *Installer) download(ctx context.Context, artifact index.Artifact) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := ins.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("download failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	tmp, err := os.CreateTemp(ins.Home.CacheDir(), "artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmp.Name())
		}
	}()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("save artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(actual, artifact.SHA256) {
		return "", &IntegrityError{URL: artifact.URL, Expected: artifact.SHA256, Actual: actual}
	}
	cleanup = false
	return tmp.Name(), nil
}

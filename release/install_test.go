package release

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/jorup/home"
	"github.com/input-output-hk/jorup/index"
)

const testPlatform = "test-amd64"

func makeTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func testInstaller(t *testing.T, archive []byte) (*Installer, *home.Dir, index.Release) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	h, err := home.Open(t.TempDir())
	require.NoError(t, err)

	sum := sha256.Sum256(archive)
	rel := index.Release{
		Channel:     "itn",
		Version:     "1.2.0",
		PublishDate: "2024-01-01",
		Artifacts: map[string]index.Artifact{
			testPlatform: {URL: srv.URL + "/archive.tar.gz", SHA256: hex.EncodeToString(sum[:])},
		},
	}
	ins := &Installer{Home: h, Client: srv.Client(), Platform: testPlatform, archiver: tarGzArchiver{}}
	return ins, h, rel
}

func TestInstall(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"jormungandr": "#!/bin/sh\n", "jcli": "#!/bin/sh\n"})
	ins, h, rel := testInstaller(t, archive)

	installed, err := ins.Install(context.Background(), &rel)
	require.NoError(t, err)
	assert.Equal(t, "itn", installed.Channel)
	assert.Equal(t, "1.2.0", installed.Version)

	_, err = os.Stat(filepath.Join(installed.InstallDir, "jormungandr"))
	require.NoError(t, err)

	releases, err := h.InstalledReleases()
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, installed.InstallDir, releases[0].InstallDir)
}

func TestInstallIsIdempotent(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"jormungandr": "binary"})
	ins, h, rel := testInstaller(t, archive)

	_, err := ins.Install(context.Background(), &rel)
	require.NoError(t, err)
	_, err = ins.Install(context.Background(), &rel)
	require.NoError(t, err)

	releases, err := h.InstalledReleases()
	require.NoError(t, err)
	assert.Len(t, releases, 1)
}

func TestInstallRecoversFromInterruptedInstall(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"jormungandr": "binary"})
	ins, h, rel := testInstaller(t, archive)

	// Leftovers of a previous install that was cut short.
	dest := h.ReleaseDir("itn", "1.2.0")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "half-written"), []byte("x"), 0o644))

	installed, err := ins.Install(context.Background(), &rel)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(installed.InstallDir, "half-written"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(installed.InstallDir, "jormungandr"))
	assert.NoError(t, err)
}

func TestInstallChecksumMismatch(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"jormungandr": "binary"})
	ins, h, rel := testInstaller(t, archive)
	artifact := rel.Artifacts[testPlatform]
	artifact.SHA256 = "deadbeef"
	rel.Artifacts[testPlatform] = artifact

	_, err := ins.Install(context.Background(), &rel)
	require.Error(t, err)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "deadbeef", integrity.Expected)

	// Nothing was registered and nothing installed.
	releases, regErr := h.InstalledReleases()
	require.NoError(t, regErr)
	assert.Empty(t, releases)
	_, statErr := os.Stat(h.ReleaseDir("itn", "1.2.0"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInstallCancelled(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"jormungandr": "binary"})
	ins, h, rel := testInstaller(t, archive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ins.Install(ctx, &rel)
	require.Error(t, err)

	releases, regErr := h.InstalledReleases()
	require.NoError(t, regErr)
	assert.Empty(t, releases)
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"../evil": "x"})
	dest := t.TempDir()
	err := tarGzArchiver{}.unpack(context.Background(), writeTemp(t, archive), dest)
	require.Error(t, err)
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMakeDefault(t *testing.T) {
	h, err := home.Open(t.TempDir())
	require.NoError(t, err)

	dir := h.ReleaseDir("itn", "1.2.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, NodeBinary()), []byte("node-binary"), 0o755))
	installed := home.InstalledRelease{Channel: "itn", Version: "1.2.0", InstallDir: dir}

	require.NoError(t, MakeDefault(h, installed))
	require.NoError(t, MakeDefault(h, installed))

	data, err := os.ReadFile(filepath.Join(h.BinDir(), NodeBinary()))
	require.NoError(t, err)
	assert.Equal(t, "node-binary", string(data))

	versions, err := h.DefaultVersions()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"itn": "1.2.0"}, versions)
}

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/jorup/index"
	"github.com/input-output-hk/jorup/release"
	"github.com/input-output-hk/jorup/runner"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"no such version", fmt.Errorf("resolve: %w", index.ErrNoSuchVersion), exitResolution},
		{"no default channel", index.ErrNoDefaultChannel, exitResolution},
		{"no compatible release", fmt.Errorf("%w: channel stable", index.ErrNoCompatibleRelease), exitResolution},
		{"checksum mismatch", fmt.Errorf("install: %w", &release.IntegrityError{URL: "u", Expected: "a", Actual: "b"}), exitInstall},
		{"already running", fmt.Errorf("%w on channel itn", runner.ErrAlreadyRunning), exitAlreadyRunning},
		{"not running", runner.ErrNotRunning, exitNotRunning},
		{"anything else", errors.New("disk full"), exitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

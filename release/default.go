package release

import (
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/inconshreveable/go-update"
	"github.com/input-output-hk/jorup/home"
)

// MakeDefault promotes an installed release to the channel default: the node
// binary is swapped into <home>/bin atomically (with rollback if the swap
// fails mid-way) and the default selection is recorded for the channel.
func MakeDefault(h *home.Dir, installed home.InstalledRelease) error {
	src := filepath.Join(installed.InstallDir, NodeBinary())
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open node binary %s: %w", src, err)
	}
	defer f.Close()

	target := filepath.Join(h.BinDir(), NodeBinary())
	if err := goupdate.Apply(f, goupdate.Options{TargetPath: target}); err != nil {
		if rerr := goupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("promote default failed: %v, rollback failed: %v", err, rerr)
		}
		return fmt.Errorf("promote default: %w", err)
	}

	return h.SetDefault(installed.Channel, installed.Version)
}

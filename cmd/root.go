// Package cmd wires the jorup command tree: channel and release resolution,
// installs, and the lifecycle commands for the managed node.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/jorup/cmd/flags"
	"github.com/input-output-hk/jorup/home"
	"github.com/input-output-hk/jorup/index"
	"github.com/input-output-hk/jorup/release"
	"github.com/input-output-hk/jorup/runner"
)

// Distinct exit codes so scripts can tell failure classes apart.
const (
	exitOK             = 0
	exitFailure        = 1
	exitResolution     = 2
	exitInstall        = 3
	exitAlreadyRunning = 4
	exitNotRunning     = 5
)

var rootCmd = &cobra.Command{
	Use:           "jorup",
	Short:         "The jormungandr installer and manager",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.GlobalConfig.JorupHome, "jorup-home", "",
		"directory where jorup installs releases and keeps its state (env JORUP_HOME)")
	pf.BoolVar(&flags.GlobalConfig.Offline, "offline", false,
		"don't query the release server to update the index")
	pf.StringVar(&flags.GlobalConfig.JorFile, "jorfile", "",
		"use the given index file instead of the synced one (testing only)")
	pf.Lookup("jorfile").Hidden = true
}

// Execute runs the CLI and exits with a code describing the failure class.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, index.ErrNoSuchVersion),
		errors.Is(err, index.ErrNoDefaultChannel),
		errors.Is(err, index.ErrNoCompatibleRelease):
		return exitResolution
	case errors.Is(err, runner.ErrAlreadyRunning):
		return exitAlreadyRunning
	case errors.Is(err, runner.ErrNotRunning):
		return exitNotRunning
	default:
		var integrity *release.IntegrityError
		if errors.As(err, &integrity) {
			return exitInstall
		}
		return exitFailure
	}
}

func openHome() (*home.Dir, error) {
	root := flags.GlobalConfig.JorupHome
	if root == "" {
		root = os.Getenv("JORUP_HOME")
	}
	if root == "" {
		var err error
		root, err = home.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	h, err := home.Open(root)
	if err != nil {
		return nil, err
	}
	warnCompetingInstalls(h)
	return h, nil
}

func openIndex(h *home.Dir) *index.Index {
	if flags.GlobalConfig.JorFile != "" {
		return index.OpenLocal(flags.GlobalConfig.JorFile)
	}
	return index.Open(h.CacheDir(), index.DefaultURL, nil)
}

func newResolver(h *home.Dir) *index.Resolver {
	return &index.Resolver{
		Index:    openIndex(h),
		Home:     h,
		Platform: release.Platform(),
	}
}

// warnCompetingInstalls flags a PATH that misses our bin dir or contains
// another jormungandr that would shadow the managed one.
func warnCompetingInstalls(h *home.Dir) {
	pathEnv, ok := os.LookupEnv("PATH")
	if !ok {
		log.Printf("WARN: no PATH recognized on this system")
		return
	}
	binDir := h.BinDir()
	present := false
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == binDir {
			present = true
			continue
		}
		candidate := filepath.Join(dir, release.NodeBinary())
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			log.Printf("WARN: found competing installation in %s", dir)
		}
	}
	if !present {
		log.Printf("WARN: PATH does not contain %s", binDir)
	}
}

func channelArgHelp() string {
	return strings.Join([]string{
		"CHANNEL is a network track: stable, beta, nightly (optionally",
		"pinned as nightly-YYYYMMDD) or any network the index declares.",
	}, "\n")
}

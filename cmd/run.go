package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/jorup/cmd/flags"
	"github.com/input-output-hk/jorup/nodecfg"
	"github.com/input-output-hk/jorup/release"
	"github.com/input-output-hk/jorup/runner"
	"github.com/input-output-hk/jorup/version"
)

var (
	runVersion     string
	runDaemon      bool
	runMakeDefault bool
	runConfigFile  string
)

var runCmd = &cobra.Command{
	Use:   "run CHANNEL [-- extra node flags...]",
	Short: "Run jormungandr for a channel",
	Long: "Run the node for a channel, installing a compatible release first if\n" +
		"none is present. Everything after -- is passed to the node untouched.\n\n" +
		"With --config the given file is used verbatim and jorup adds no\n" +
		"configuration of its own besides the extra flags; the default\n" +
		"configuration can be inspected with `jorup defaults`.\n\n" + channelArgHelp(),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := version.ParseChannel(args[0])
		if err != nil {
			return err
		}
		extra := args[1:]

		constraint := version.Any()
		if runVersion != "" {
			parsed, err := version.ParseConstraint(runVersion)
			if err != nil {
				return err
			}
			constraint = parsed
		}

		h, err := openHome()
		if err != nil {
			return err
		}
		res, err := newResolver(h).Resolve(cmd.Context(), ch, constraint, false)
		if err != nil {
			return err
		}

		installed := res.Installed
		if installed == nil {
			if res.Release == nil || flags.GlobalConfig.Offline {
				return fmt.Errorf("release %s is not installed and cannot be fetched offline", res.Version)
			}
			rel, err := release.NewInstaller(h, nil).Install(cmd.Context(), res.Release)
			if err != nil {
				return err
			}
			installed = &rel
		}
		if runMakeDefault {
			if err := release.MakeDefault(h, *installed); err != nil {
				return err
			}
		}

		mode := nodecfg.UseDefaults
		if runConfigFile != "" {
			mode = nodecfg.UseOverride
		}
		launch, err := nodecfg.Render(mode, nodecfg.Input{
			Channel:      ch.Name,
			Blockchain:   res.Blockchain,
			Home:         h,
			OverrideFile: runConfigFile,
			Extra:        extra,
		})
		if err != nil {
			return err
		}

		ctrl := runner.NewController(h)
		rec, err := ctrl.Start(cmd.Context(), runner.StartSpec{
			Channel:  ch.Name,
			Version:  installed.Version,
			Binary:   filepath.Join(installed.InstallDir, release.NodeBinary()),
			Args:     launch.Args,
			RestPort: launch.RestPort,
			Daemon:   runDaemon,
		})
		if err != nil {
			return err
		}
		if runDaemon {
			fmt.Printf("node started for channel %s (version %s, pid %d)\n", ch.Name, installed.Version, rec.PID)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runVersion, "version", "v", "",
		"run this exact version instead of the latest compatible one")
	runCmd.Flags().BoolVarP(&runDaemon, "daemon", "d", false,
		"run the node detached in the background")
	runCmd.Flags().BoolVar(&runMakeDefault, "make-default", false,
		"make the resolved version the channel default")
	runCmd.Flags().StringVar(&runConfigFile, "config", "",
		"use this node configuration file verbatim instead of the defaults")
	rootCmd.AddCommand(runCmd)
}

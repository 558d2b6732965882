package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/jorup/cmd/flags"
	"github.com/input-output-hk/jorup/release"
	"github.com/input-output-hk/jorup/version"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage installed jormungandr releases",
}

var (
	nodeInstallVersion     string
	nodeInstallMakeDefault bool
)

var nodeInstallCmd = &cobra.Command{
	Use:   "install [CHANNEL]",
	Short: "Install a jormungandr release for a channel",
	Long:  "Install the latest compatible release for a channel, or an explicit\nversion given with --version.\n\n" + channelArgHelp(),
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ch version.Channel
		if len(args) == 1 {
			parsed, err := version.ParseChannel(args[0])
			if err != nil {
				return err
			}
			ch = parsed
		}

		constraint := version.Any()
		if nodeInstallVersion != "" {
			parsed, err := version.ParseConstraint(nodeInstallVersion)
			if err != nil {
				return err
			}
			constraint = parsed
		}

		h, err := openHome()
		if err != nil {
			return err
		}
		refresh := !flags.GlobalConfig.Offline && flags.GlobalConfig.JorFile == ""
		res, err := newResolver(h).Resolve(cmd.Context(), ch, constraint, refresh)
		if err != nil {
			return err
		}

		installed := res.Installed
		if installed == nil {
			if res.Release == nil {
				return fmt.Errorf("release %s is not installed and cannot be fetched offline", res.Version)
			}
			rel, err := release.NewInstaller(h, nil).Install(cmd.Context(), res.Release)
			if err != nil {
				return err
			}
			installed = &rel
		} else {
			fmt.Printf("%s %s is already installed\n", installed.Channel, installed.Version)
		}

		if nodeInstallMakeDefault {
			if err := release.MakeDefault(h, *installed); err != nil {
				return err
			}
			fmt.Printf("%s %s is now the default\n", installed.Channel, installed.Version)
		}
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed releases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		releases, err := h.InstalledReleases()
		if err != nil {
			return err
		}
		defaults, err := h.DefaultVersions()
		if err != nil {
			return err
		}
		for _, rel := range releases {
			marker := ""
			if defaults[rel.Channel] == rel.Version {
				marker = " (default)"
			}
			fmt.Printf("%s\t%s%s\t%s\n", rel.Channel, rel.Version, marker, rel.InstallDir)
		}
		return nil
	},
}

func init() {
	nodeInstallCmd.Flags().StringVarP(&nodeInstallVersion, "version", "v", "",
		"install this exact version instead of the latest compatible one")
	nodeInstallCmd.Flags().BoolVar(&nodeInstallMakeDefault, "make-default", false,
		"make the installed version the channel default")
	nodeCmd.AddCommand(nodeInstallCmd, nodeListCmd)
	rootCmd.AddCommand(nodeCmd)
}

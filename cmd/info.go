package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/jorup/runner"
	"github.com/input-output-hk/jorup/version"
)

var infoCmd = &cobra.Command{
	Use:   "info CHANNEL",
	Short: "Show the running node's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := version.ParseChannel(args[0])
		if err != nil {
			return err
		}
		h, err := openHome()
		if err != nil {
			return err
		}
		info, err := runner.NewController(h).NodeInfo(cmd.Context(), ch.Name)
		if err != nil {
			return err
		}
		fmt.Printf("channel: %s\nversion: %s\npid: %d\nstarted: %s\n",
			info.Record.Channel, info.Record.Version, info.Record.PID, info.Record.StartedAt)
		if info.Stats != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info.Stats)
		}
		return nil
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown CHANNEL",
	Short: "Stop the running node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := version.ParseChannel(args[0])
		if err != nil {
			return err
		}
		h, err := openHome()
		if err != nil {
			return err
		}
		forced, err := runner.NewController(h).Shutdown(cmd.Context(), ch.Name)
		if err != nil {
			return err
		}
		if forced {
			fmt.Println("node did not stop gracefully and was terminated")
		} else {
			fmt.Println("node stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd, shutdownCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/jorup/nodecfg"
	"github.com/input-output-hk/jorup/version"
)

var defaultsCmd = &cobra.Command{
	Use:   "defaults CHANNEL",
	Short: "Print the effective default node configuration for a channel",
	Long: "Print the configuration jorup would hand to the node for this channel.\n" +
		"The output can be saved, customized and passed back with `jorup run --config`.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := version.ParseChannel(args[0])
		if err != nil {
			return err
		}
		h, err := openHome()
		if err != nil {
			return err
		}
		doc, err := openIndex(h).Current()
		if err != nil {
			return err
		}
		bc := doc.Blockchain(ch.Name)
		if bc == nil {
			return fmt.Errorf("channel %q is not declared by the index", ch.Name)
		}
		rendered := nodecfg.DefaultDocument(nodecfg.Input{
			Channel:    ch.Name,
			Blockchain: bc,
			Home:       h,
		})
		return yaml.NewEncoder(os.Stdout).Encode(rendered)
	},
}

func init() {
	rootCmd.AddCommand(defaultsCmd)
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/jorup/cmd/flags"
)

var blockchainCmd = &cobra.Command{
	Use:   "blockchain",
	Short: "Blockchain configuration management",
}

var blockchainUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download the latest blockchain and release index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flags.GlobalConfig.Offline {
			return errors.New("cannot update the index offline")
		}
		h, err := openHome()
		if err != nil {
			return err
		}
		if err := openIndex(h).Refresh(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("index updated")
		return nil
	},
}

var blockchainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the blockchains known to the local index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}
		doc, err := openIndex(h).Current()
		if err != nil {
			return err
		}
		for _, bc := range doc.Blockchains {
			fmt.Printf("%s\t%s\n", bc.Channel, bc.Description)
		}
		return nil
	},
}

func init() {
	blockchainCmd.AddCommand(blockchainUpdateCmd, blockchainListCmd)
	rootCmd.AddCommand(blockchainCmd)
}

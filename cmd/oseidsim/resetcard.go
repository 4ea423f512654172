package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jakuje/oseid/internal/keystore"
)

var resetCardCmd = &cobra.Command{
	Use:   "reset-card",
	Short: "Erase all files, key parts, and PIN state, returning the applet to Uninitialized",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeDir, _ := cmd.Flags().GetString("store")
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("reset-card: pass --yes to confirm this destroys all card state")
		}

		store, err := keystore.Open(storeDir)
		if err != nil {
			return err
		}
		if err := store.EraseCard(); err != nil {
			return fmt.Errorf("reset-card: %w", err)
		}
		fmt.Println("card erased")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCardCmd)
	resetCardCmd.Flags().String("store", "", "key store directory")
	resetCardCmd.Flags().Bool("yes", false, "confirm the destructive reset")
	_ = resetCardCmd.MarkFlagRequired("store")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jakuje/oseid/internal/keystore"
	"github.com/Jakuje/oseid/internal/pinpad"
)

var initpinCmd = &cobra.Command{
	Use:   "initpin",
	Short: "Initialize a PIN reference on the card, prompting for the PIN value",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeDir, _ := cmd.Flags().GetString("store")
		ref, _ := cmd.Flags().GetUint8("ref")

		pin, err := pinpad.ReadHiddenPIN("new PIN: ")
		if err != nil {
			return err
		}
		confirm, err := pinpad.ReadHiddenPIN("confirm PIN: ")
		if err != nil {
			return err
		}
		if string(pin) != string(confirm) {
			return fmt.Errorf("initpin: PIN and confirmation do not match")
		}

		store, err := keystore.Open(storeDir)
		if err != nil {
			return err
		}
		if err := store.InitializePIN(ref, pin); err != nil {
			return fmt.Errorf("initpin: %w", err)
		}
		fmt.Println("PIN initialized")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initpinCmd)
	initpinCmd.Flags().String("store", "", "key store directory")
	initpinCmd.Flags().Uint8("ref", 0x01, "PIN reference (low nibble of GET/PUT DATA P2)")
	_ = initpinCmd.MarkFlagRequired("store")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/keystore"
	"github.com/Jakuje/oseid/internal/pinpad"
)

var importkeyCmd = &cobra.Command{
	Use:   "importkey",
	Short: "Import a symmetric key into a DES or AES key file, prompting for the key hex",
	RunE: func(cmd *cobra.Command, args []string) error {
		storeDir, _ := cmd.Flags().GetString("store")
		fileID, _ := cmd.Flags().GetUint16("file-id")
		typeName, _ := cmd.Flags().GetString("type")
		access, _ := cmd.Flags().GetUint8("access")

		fileType, err := fileTypeByName(typeName)
		if err != nil {
			return err
		}
		if fileType != constants.FileTypeDES && fileType != constants.FileTypeAES {
			return fmt.Errorf("importkey: only des and aes key types are supported")
		}

		key, err := pinpad.ReadHiddenKeyHex("key (hex): ")
		if err != nil {
			return err
		}

		store, err := keystore.Open(storeDir)
		if err != nil {
			return err
		}
		if err := store.CreateFile(fileID, fileType, len(key)*8, access); err != nil {
			return fmt.Errorf("importkey: create file: %w", err)
		}
		if err := store.WritePart(fileID, keystore.PartSymmetric, key); err != nil {
			return fmt.Errorf("importkey: write key: %w", err)
		}
		fmt.Println("key imported")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importkeyCmd)
	importkeyCmd.Flags().String("store", "", "key store directory")
	importkeyCmd.Flags().Uint16("file-id", 0, "file id to create and import into")
	importkeyCmd.Flags().String("type", "aes", "key type: des or aes")
	importkeyCmd.Flags().Uint8("access", 0x00, "access condition byte")
	_ = importkeyCmd.MarkFlagRequired("store")
	_ = importkeyCmd.MarkFlagRequired("file-id")
}

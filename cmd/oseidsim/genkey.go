package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/keystore"
	"github.com/Jakuje/oseid/internal/session"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Create a key file and generate fresh key material for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := setupLogging(cmd)

		storeDir, _ := cmd.Flags().GetString("store")
		fileID, _ := cmd.Flags().GetUint16("file-id")
		typeName, _ := cmd.Flags().GetString("type")
		bits, _ := cmd.Flags().GetInt("bits")
		access, _ := cmd.Flags().GetUint8("access")

		fileType, err := fileTypeByName(typeName)
		if err != nil {
			return err
		}

		store, err := keystore.Open(storeDir)
		if err != nil {
			return err
		}
		if err := store.CreateFile(fileID, fileType, bits, access); err != nil {
			return fmt.Errorf("genkey: create file: %w", err)
		}
		store.SetSelected(fileID)

		proc := session.NewProcessor(store, log)
		resp := proc.Process([]byte{0x00, apdu.InsGenerateKey, 0x00, 0x00})
		if resp.SW != apdu.SWSuccess {
			return fmt.Errorf("genkey: card returned SW=%04X", resp.SW)
		}
		fmt.Printf("%X\n", resp.Data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
	genkeyCmd.Flags().String("store", "", "key store directory")
	genkeyCmd.Flags().Uint16("file-id", 0, "file id to create and generate into")
	genkeyCmd.Flags().String("type", "rsa2048", "key type: rsa (also rsa1024, rsa2048), ecnist (or ec), ecsecp256k1 (or secp256k1), des, aes; the size always comes from --bits")
	genkeyCmd.Flags().Int("bits", 2048, "modulus/scalar size in bits")
	genkeyCmd.Flags().Uint8("access", 0x00, "access condition byte")
	_ = genkeyCmd.MarkFlagRequired("store")
	_ = genkeyCmd.MarkFlagRequired("file-id")
}

func fileTypeByName(name string) (byte, error) {
	switch name {
	case "rsa2048", "rsa1024", "rsa":
		return constants.FileTypeRSA, nil
	case "ecnist", "ec":
		return constants.FileTypeECNIST, nil
	case "ecsecp256k1", "secp256k1":
		return constants.FileTypeECSecp256k1, nil
	case "des":
		return constants.FileTypeDES, nil
	case "aes":
		return constants.FileTypeAES, nil
	default:
		return 0, fmt.Errorf("genkey: unknown key type %q", name)
	}
}

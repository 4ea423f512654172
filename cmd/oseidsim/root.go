// Command oseidsim emulates a MyEID-compatible cryptographic smart card: it
// terminates command APDUs against a file-backed key store instead of
// driving a physical PC/SC reader, folding the teacher's one-binary-per-
// concern tools (ro, keyswap, newekey, permissionsedit, reset, sdmconfig)
// into one-subcommand-per-concern.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"hermannm.dev/devlog"
)

var logLevel slog.LevelVar

var rootCmd = &cobra.Command{
	Use:   "oseidsim",
	Short: "MyEID-compatible card processor simulator",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

func setupLogging(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	return slog.Default()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

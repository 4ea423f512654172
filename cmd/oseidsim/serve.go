package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Jakuje/oseid/internal/config"
	"github.com/Jakuje/oseid/internal/keystore"
	"github.com/Jakuje/oseid/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the card processor, accepting framed command APDUs over a socket",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log := setupLogging(cmd)

		cfgPath := viper.GetString("config")
		if cfgPath == "" {
			return fmt.Errorf("serve requires --config")
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		store, err := keystore.Open(cfg.KeyStoreDir)
		if err != nil {
			return err
		}
		proc := session.NewProcessor(store, log)

		return serveAPDU(cmd.Context(), cfg.Listen, proc, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("config", "", "path to the oseidsim YAML manifest")
}

// serveAPDU accepts connections on addr (network://address, e.g.
// "unix:///run/oseidsim.sock" or "tcp://127.0.0.1:9000") and processes one
// framed APDU per request: a 2-byte big-endian length prefix followed by
// the raw command APDU, answered the same way with the response APDU
// (data || SW).
func serveAPDU(ctx context.Context, addr string, proc *session.Processor, log *slog.Logger) error {
	network, address, err := splitListenAddr(addr)
	if err != nil {
		return err
	}

	lis, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("serve: listen %s %s: %w", network, address, err)
	}
	defer lis.Close()
	log.Info("listening", "network", network, "address", address)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("shutting down")
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if strings.Contains(err.Error(), "closed") {
				return nil
			}
			return err
		}
		go handleConn(conn, proc, log)
	}
}

func handleConn(conn net.Conn, proc *session.Processor, log *slog.Logger) {
	defer conn.Close()
	for {
		var lenBuf [2]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		resp := proc.Process(body)
		wire := resp.Bytes()

		var outLen [2]byte
		binary.BigEndian.PutUint16(outLen[:], uint16(len(wire)))
		if _, err := conn.Write(outLen[:]); err != nil {
			return
		}
		if _, err := conn.Write(wire); err != nil {
			return
		}
	}
}

func splitListenAddr(addr string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(addr, "unix://"):
		return "unix", strings.TrimPrefix(addr, "unix://"), nil
	case strings.HasPrefix(addr, "tcp://"):
		return "tcp", strings.TrimPrefix(addr, "tcp://"), nil
	default:
		return "", "", fmt.Errorf("serve: listen address must start with unix:// or tcp://, got %q", addr)
	}
}

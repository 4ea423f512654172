// Package pinpad implements hidden-input PIN and key entry for the
// provisioning subcommands (initpin, importkey), grounded on the teacher's
// keyswap/newekey use of golang.org/x/term for password-style prompts.
package pinpad

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// ReadHiddenPIN prompts on stderr and reads a PIN with terminal echo
// disabled, trimming the trailing newline.
func ReadHiddenPIN(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	line, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("pinpad: read PIN: %w", err)
	}
	return line, nil
}

// ReadHiddenKeyHex prompts for a hex-encoded key with terminal echo
// disabled and decodes it.
func ReadHiddenKeyHex(prompt string) ([]byte, error) {
	raw, err := ReadHiddenPIN(prompt)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("pinpad: key must be hex-encoded: %w", err)
	}
	return decoded, nil
}

func readLine(f *os.File) ([]byte, error) {
	reader := bufio.NewReader(f)
	line, err := reader.ReadString('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("pinpad: read line: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

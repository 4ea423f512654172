package keystore

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// readHexFile loads raw bytes from a single-line uppercase-hex file, the
// same on-disk convention the teacher uses for AES key material
// (pkg/ntag424/keys.go LoadKeyHexFile) generalized to arbitrary key parts.
func readHexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("keystore: invalid hex in %s: %w", path, err)
		}
		return b, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("keystore: %s is empty", path)
}

// writeHexFile persists raw bytes as a single-line uppercase-hex file.
func writeHexFile(path string, data []byte) error {
	return os.WriteFile(path, []byte(strings.ToUpper(hex.EncodeToString(data))+"\n"), 0o600)
}

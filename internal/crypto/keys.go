package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PepperSize is the length of the hashing pepper in bytes.
const PepperSize = 32

// GeneratePepper returns a fresh random pepper.
func GeneratePepper() ([]byte, error) {
	pepper := make([]byte, PepperSize)
	if _, err := rand.Read(pepper); err != nil {
		return nil, fmt.Errorf("failed to read random pepper: %w", err)
	}
	return pepper, nil
}

// LoadOrCreatePepper reads a hex encoded pepper from path, creating the file
// with a fresh pepper when it does not exist. Every instance sharing a data
// store must use the same pepper, otherwise stored hashes never match.
func LoadOrCreatePepper(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		pepper, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil {
			return nil, fmt.Errorf("pepper file %s is not hex: %w", path, decErr)
		}
		if len(pepper) < 16 {
			return nil, fmt.Errorf("pepper file %s holds %d bytes, need at least 16", path, len(pepper))
		}
		return pepper, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read pepper file: %w", err)
	}

	pepper, err := GeneratePepper()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create pepper directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(pepper)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write pepper file: %w", err)
	}
	return pepper, nil
}

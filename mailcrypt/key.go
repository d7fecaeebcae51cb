package mailcrypt

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	keySize = 32
	ivSize  = aes.BlockSize
)

// Key is the persisted AES-256 key and the single IV reused for every
// encryption under this instance.
type Key struct {
	Key []byte
	IV  []byte
}

type keyFile struct {
	Key string `json:"key"`
	IV  string `json:"iv"`
}

// GenerateKey returns a fresh key and IV.
func GenerateKey() (*Key, error) {
	k := &Key{Key: make([]byte, keySize), IV: make([]byte, ivSize)}
	if _, err := rand.Read(k.Key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if _, err := rand.Read(k.IV); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return k, nil
}

// LoadKey reads a key file written by SaveKey.
func LoadKey(path string) (*Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("key file %s is not valid json: %w", path, err)
	}

	k := &Key{}
	if k.Key, err = hex.DecodeString(kf.Key); err != nil || len(k.Key) != keySize {
		return nil, fmt.Errorf("key file %s: key must be %d hex encoded bytes", path, keySize)
	}
	if k.IV, err = hex.DecodeString(kf.IV); err != nil || len(k.IV) != ivSize {
		return nil, fmt.Errorf("key file %s: iv must be %d hex encoded bytes", path, ivSize)
	}
	return k, nil
}

// SaveKey writes the key file with owner-only permissions.
func SaveKey(path string, k *Key) error {
	raw, err := json.Marshal(keyFile{Key: hex.EncodeToString(k.Key), IV: hex.EncodeToString(k.IV)})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// LoadOrCreateKey loads the key at path, generating and persisting one first
// when the file does not exist.
func LoadOrCreateKey(path string) (*Key, error) {
	k, err := LoadKey(path)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if k, err = GenerateKey(); err != nil {
		return nil, err
	}
	if err := SaveKey(path, k); err != nil {
		return nil, err
	}
	return k, nil
}

package mailcrypt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
)

const (
	symbolAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	symbolCount    = 16
	codeWidth      = 2
)

// Table maps every byte value to a fixed width two-symbol code.
// It is generated once per deployment and shared by every instance.
type Table [256]string

// GenerateTable picks 16 distinct symbols at random and expands them into
// all 256 two-symbol products.
func GenerateTable() (Table, error) {
	symbols := []byte(symbolAlphabet)
	for i := len(symbols) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return Table{}, fmt.Errorf("failed to shuffle symbols: %w", err)
		}
		j := int(n.Int64())
		symbols[i], symbols[j] = symbols[j], symbols[i]
	}
	symbols = symbols[:symbolCount]

	var t Table
	for i := 0; i < symbolCount; i++ {
		for j := 0; j < symbolCount; j++ {
			t[i*symbolCount+j] = string([]byte{symbols[i], symbols[j]})
		}
	}
	return t, nil
}

// ParseTable reads the comma separated form written by Table.String.
func ParseTable(s string) (Table, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != len(Table{}) {
		return Table{}, fmt.Errorf("substitution table has %d entries, want %d", len(parts), len(Table{}))
	}

	var t Table
	seen := make(map[string]struct{}, len(parts))
	for i, p := range parts {
		if len(p) != codeWidth {
			return Table{}, fmt.Errorf("substitution table entry %d %q is not %d symbols wide", i, p, codeWidth)
		}
		if _, dup := seen[p]; dup {
			return Table{}, fmt.Errorf("substitution table entry %d %q is duplicated", i, p)
		}
		seen[p] = struct{}{}
		t[i] = p
	}
	return t, nil
}

func (t Table) String() string {
	return strings.Join(t[:], ",")
}

// LoadOrCreateTable loads the table at path, generating and persisting one
// when the file does not exist.
func LoadOrCreateTable(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return ParseTable(string(raw))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Table{}, fmt.Errorf("failed to read substitution table: %w", err)
	}

	t, err := GenerateTable()
	if err != nil {
		return Table{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Table{}, fmt.Errorf("failed to create table directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(t.String()), 0o600); err != nil {
		return Table{}, fmt.Errorf("failed to write substitution table: %w", err)
	}
	return t, nil
}

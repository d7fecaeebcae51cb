// Package mailcrypt stores email addresses so that they are confidential at
// rest yet searchable by equality.
//
// Encryption is deterministic: one key and one IV are reused for every
// address, so equal addresses always produce equal ciphertexts and the store
// can answer "does this address exist" by comparing ciphertexts. The price is
// that equality between records is visible to anyone holding the ciphertexts.
// Switching to random IVs would break every equality lookup.
//
// Before encryption the address is turned into a position record (which
// characters of the local part occur at which indexes, plus the length and the
// domain), serialized as JSON and mapped byte by byte through a per-deployment
// substitution table.
package mailcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"

	serrors "go.pilab.hu/vident/errors"
)

type positionRecord struct {
	Len       int              `json:"len"`
	Domain    string           `json:"domain"`
	Positions map[string][]int `json:"positions"`
}

// Cipher is the deterministic email cipher. It is safe for concurrent use.
type Cipher struct {
	block cipher.Block
	iv    []byte
	table Table
	index map[string]byte
}

// New builds a Cipher from a key and a substitution table.
func New(key *Key, table Table) (*Cipher, error) {
	block, err := aes.NewCipher(key.Key)
	if err != nil {
		return nil, err
	}
	if len(key.IV) != block.BlockSize() {
		return nil, serrors.NewValidation("iv length does not match the block size")
	}

	index := make(map[string]byte, len(table))
	for i, code := range table {
		if _, dup := index[code]; dup || len(code) != codeWidth {
			return nil, serrors.NewValidation("substitution table is not a permutation of two-symbol codes")
		}
		index[code] = byte(i)
	}

	return &Cipher{
		block: block,
		iv:    append([]byte(nil), key.IV...),
		table: table,
		index: index,
	}, nil
}

// Open loads (or creates on first use) the key and table files and returns
// the resulting Cipher.
func Open(keyPath, tablePath string) (*Cipher, error) {
	key, err := LoadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	table, err := LoadOrCreateTable(tablePath)
	if err != nil {
		return nil, err
	}
	return New(key, table)
}

// Encrypt returns the hex ciphertext for email. It is a pure function of the
// key, the table and the address.
func (c *Cipher) Encrypt(email string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "", serrors.NewValidation("email address must have a non-empty local part and an @")
	}
	if !utf8.ValidString(email) {
		return "", serrors.NewValidation("email address is not valid utf-8")
	}

	local, domain := email[:at], email[at+1:]
	rec := positionRecord{
		Domain:    domain,
		Positions: make(map[string][]int),
	}
	for _, r := range local {
		ch := string(r)
		rec.Positions[ch] = append(rec.Positions[ch], rec.Len)
		rec.Len++
	}

	// encoding/json writes map keys sorted, which keeps the output stable.
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	var encoded strings.Builder
	encoded.Grow(len(raw) * codeWidth)
	for _, b := range raw {
		encoded.WriteString(c.table[b])
	}

	plain := pkcs7Pad([]byte(encoded.String()), c.block.BlockSize())
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, plain)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Anything that was not produced by Encrypt with
// the same key and table fails with ErrMalformedCiphertext.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	enc, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", serrors.NewMalformedCiphertext("not hex encoded")
	}
	bs := c.block.BlockSize()
	if len(enc) == 0 || len(enc)%bs != 0 {
		return "", serrors.NewMalformedCiphertext("length is not a multiple of the block size")
	}

	plain := make([]byte, len(enc))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plain, enc)
	plain, ok := pkcs7Unpad(plain, bs)
	if !ok {
		return "", serrors.NewMalformedCiphertext("bad padding")
	}
	if len(plain)%codeWidth != 0 {
		return "", serrors.NewMalformedCiphertext("code string has odd length")
	}

	raw := make([]byte, 0, len(plain)/codeWidth)
	for i := 0; i < len(plain); i += codeWidth {
		b, ok := c.index[string(plain[i:i+codeWidth])]
		if !ok {
			return "", serrors.NewMalformedCiphertext("unknown substitution code")
		}
		raw = append(raw, b)
	}

	var rec positionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", serrors.NewMalformedCiphertext("position record is not valid json")
	}
	local, ok := rec.rebuild()
	if !ok {
		return "", serrors.NewMalformedCiphertext("position record is inconsistent")
	}
	return local + "@" + rec.Domain, nil
}

// rebuild places each recorded character at each of its positions. Every
// slot must be filled exactly once.
func (r positionRecord) rebuild() (string, bool) {
	if r.Len <= 0 || r.Len > 1<<16 {
		return "", false
	}
	slots := make([]string, r.Len)
	filled := 0
	for ch, idxs := range r.Positions {
		if utf8.RuneCountInString(ch) != 1 {
			return "", false
		}
		for _, i := range idxs {
			if i < 0 || i >= r.Len || slots[i] != "" {
				return "", false
			}
			slots[i] = ch
			filled++
		}
	}
	if filled != r.Len {
		return "", false
	}
	return strings.Join(slots, ""), true
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, false
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}

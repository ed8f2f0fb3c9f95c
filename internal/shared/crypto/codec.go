// Package crypto implements the field-level codec applied to every persisted
// record. Structural keys needed for querying and ownership checks stay in the
// clear; every other value is serialized and sealed with AES-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// ExemptKeys are stored unencrypted so the backing store can filter on
// ownership and sort on timestamps without decrypting documents.
var ExemptKeys = map[string]struct{}{
	"id":         {},
	"createdAt":  {},
	"lastUpdate": {},
	"userId":     {},
}

// Outcome reports what DecryptValue did with a value.
type Outcome int

const (
	// OutcomeDecrypted means the value was a valid ciphertext and was decrypted.
	OutcomeDecrypted Outcome = iota
	// OutcomePassthrough means the value was returned unchanged, either because
	// it was never encrypted (legacy plaintext) or decryption failed.
	OutcomePassthrough
)

// Codec encrypts and decrypts record field values with a process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a base64-encoded 16, 24 or 32 byte key.
// Both standard and URL-safe alphabets are accepted.
func NewCodec(encodedKey string) (*Codec, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// GenerateKey returns a fresh random 32-byte key, URL-safe base64 encoded.
// Data encrypted under a generated key is unreadable after a restart.
func GenerateKey() string {
	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		panic(fmt.Sprintf("generate encryption key: %v", err))
	}
	return base64.URLEncoding.EncodeToString(key[:])
}

func decodeKey(encoded string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawURLEncoding,
		base64.RawStdEncoding,
	}
	var key []byte
	var err error
	for _, enc := range encodings {
		key, err = enc.DecodeString(encoded)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", len(key))
	}
}

// EncryptRecord returns the envelope form of a record: exempt keys unchanged,
// every other value replaced by a ciphertext string.
func (c *Codec) EncryptRecord(record map[string]any) map[string]any {
	envelope := make(map[string]any, len(record))
	for k, v := range record {
		if _, exempt := ExemptKeys[k]; exempt {
			envelope[k] = v
			continue
		}
		envelope[k] = c.EncryptValue(v)
	}
	return envelope
}

// DecryptRecord reverses EncryptRecord. Values that fail to decrypt are kept
// as-is so plaintext documents written before encryption was enabled still
// read back.
func (c *Codec) DecryptRecord(envelope map[string]any) map[string]any {
	record := make(map[string]any, len(envelope))
	for k, v := range envelope {
		if _, exempt := ExemptKeys[k]; exempt {
			record[k] = v
			continue
		}
		record[k], _ = c.DecryptValue(v)
	}
	return record
}

// EncryptValue serializes a value and seals it. Strings are encrypted as-is;
// everything else goes through JSON first.
func (c *Codec) EncryptValue(v any) string {
	var plaintext []byte
	switch val := v.(type) {
	case string:
		plaintext = []byte(val)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			plaintext = []byte(fmt.Sprintf("%v", v))
		} else {
			plaintext = raw
		}
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		panic(fmt.Sprintf("generate nonce: %v", err))
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// DecryptValue attempts a best-effort decrypt. Non-string values, values that
// are not valid ciphertexts, and tampered ciphertexts come back unchanged with
// OutcomePassthrough. Decrypted text is parsed back as JSON when possible.
func (c *Codec) DecryptValue(v any) (any, Outcome) {
	s, ok := v.(string)
	if !ok {
		return v, OutcomePassthrough
	}

	sealed, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sealed) <= c.aead.NonceSize() {
		return v, OutcomePassthrough
	}
	nonce, ct := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return v, OutcomePassthrough
	}

	var parsed any
	if err := json.Unmarshal(plaintext, &parsed); err == nil {
		return parsed, OutcomeDecrypted
	}
	return string(plaintext), OutcomeDecrypted
}

package crypto

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(GenerateKey())
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestRecordRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	record := map[string]any{
		"id":         "p1",
		"createdAt":  "2024-01-02T10:00:00Z",
		"lastUpdate": "2024-01-03T10:00:00Z",
		"userId":     "user-a",
		"name":       "Jane Doe",
		"age":        float64(52),
		"doctors":    []any{"Dr. Smith", "Dr. Jones"},
		"medicationsList": []any{
			map[string]any{"name": "Metformin", "dose": "500mg"},
		},
		"notes": map[string]any{"allergies": "penicillin"},
	}

	envelope := codec.EncryptRecord(record)

	// Exempt keys stay in the clear.
	for _, k := range []string{"id", "createdAt", "lastUpdate", "userId"} {
		if envelope[k] != record[k] {
			t.Fatalf("exempt key %q changed: %v", k, envelope[k])
		}
	}
	// Everything else becomes a ciphertext string distinct from the original.
	for k, v := range envelope {
		if _, exempt := ExemptKeys[k]; exempt {
			continue
		}
		s, ok := v.(string)
		if !ok {
			t.Fatalf("field %q not encrypted to a string: %T", k, v)
		}
		if s == record[k] {
			t.Fatalf("field %q unchanged by encryption", k)
		}
	}

	got := codec.DecryptRecord(envelope)
	if !reflect.DeepEqual(got, record) {
		t.Fatalf("round trip mismatch\n got: %#v\nwant: %#v", got, record)
	}
}

func TestDecryptValueTamperedCiphertext(t *testing.T) {
	codec := newTestCodec(t)

	ciphertext := codec.EncryptValue("sensitive")
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	got, outcome := codec.DecryptValue(tampered)
	if outcome != OutcomePassthrough {
		t.Fatalf("expected passthrough for tampered value, got outcome %v", outcome)
	}
	if got != tampered {
		t.Fatalf("expected original ciphertext back, got %v", got)
	}
}

func TestDecryptValueTruncatedCiphertext(t *testing.T) {
	codec := newTestCodec(t)

	ciphertext := codec.EncryptValue("sensitive")
	raw, _ := base64.StdEncoding.DecodeString(ciphertext)
	truncated := base64.StdEncoding.EncodeToString(raw[:codec.aead.NonceSize()])

	got, outcome := codec.DecryptValue(truncated)
	if outcome != OutcomePassthrough {
		t.Fatalf("expected passthrough for truncated value, got outcome %v", outcome)
	}
	if got != truncated {
		t.Fatalf("expected original value back, got %v", got)
	}
}

func TestDecryptValueLegacyPlaintext(t *testing.T) {
	codec := newTestCodec(t)

	// Values written before encryption was enabled come back unchanged.
	for _, v := range []any{"plain text note", float64(42), true, nil} {
		got, outcome := codec.DecryptValue(v)
		if outcome != OutcomePassthrough {
			t.Fatalf("expected passthrough for %v, got outcome %v", v, outcome)
		}
		if !reflect.DeepEqual(got, v) {
			t.Fatalf("legacy value changed: got %v want %v", got, v)
		}
	}
}

func TestDecryptRecordKeyMismatch(t *testing.T) {
	codecA := newTestCodec(t)
	codecB := newTestCodec(t)

	envelope := codecA.EncryptRecord(map[string]any{"id": "p1", "name": "Jane"})
	got := codecB.DecryptRecord(envelope)

	// Wrong key: the ciphertext string is returned untouched, never an error.
	if got["name"] != envelope["name"] {
		t.Fatalf("expected raw ciphertext under key mismatch, got %v", got["name"])
	}
	if got["id"] != "p1" {
		t.Fatalf("exempt key changed: %v", got["id"])
	}
}

func TestNewCodecRejectsBadKeys(t *testing.T) {
	cases := []string{
		"",
		"not base64!!!",
		base64.URLEncoding.EncodeToString([]byte("short")),
	}
	for _, key := range cases {
		if _, err := NewCodec(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestNewCodecAcceptsBothAlphabets(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	for _, encoded := range []string{
		base64.URLEncoding.EncodeToString(key),
		base64.StdEncoding.EncodeToString(key),
	} {
		if _, err := NewCodec(encoded); err != nil {
			t.Fatalf("expected key %q to be accepted: %v", encoded, err)
		}
	}
}

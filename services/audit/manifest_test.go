package audit

import (
	"bytes"
	"testing"
	"time"
)

func TestSigningBytesExcludesSignature(t *testing.T) {
	m := Manifest{
		Version:      "1",
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		WindowFrom:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		WindowTo:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EventCount:   7,
		EventsSHA256: "abc",
	}

	unsigned, err := m.SigningBytes()
	if err != nil {
		t.Fatalf("SigningBytes() error = %v", err)
	}

	m.Signature = "deadbeef"
	signed, err := m.SigningBytes()
	if err != nil {
		t.Fatalf("SigningBytes() error = %v", err)
	}

	if !bytes.Equal(unsigned, signed) {
		t.Fatal("SigningBytes() must not change once a signature is attached")
	}
	if bytes.Contains(signed, []byte("deadbeef")) {
		t.Fatal("SigningBytes() leaked the signature into the payload")
	}
}

package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a, err := New(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatal(err)
	}

	ct, err := a.EncryptToString("1//refresh-token-value")
	if err != nil {
		t.Fatal(err)
	}
	if ct == "1//refresh-token-value" {
		t.Fatal("ciphertext equals plaintext")
	}

	pt, err := a.DecryptString(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != "1//refresh-token-value" {
		t.Fatalf("round-trip mismatch: %q", pt)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	a, err := New(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatal(err)
	}
	ct, err := a.EncryptToString("secret")
	if err != nil {
		t.Fatal(err)
	}

	mangled := []byte(ct)
	mangled[len(mangled)-1] ^= 'x'
	if _, err := a.DecryptString(string(mangled)); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}

	if _, err := a.DecryptString("AA"); err == nil {
		t.Fatal("short ciphertext accepted")
	}
}

func TestNewRejectsBadKeyLength(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("accepted a 5-byte key")
	}
}

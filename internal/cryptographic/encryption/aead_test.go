package encryption

import (
	"bytes"
	"testing"
)

func TestAEADRoundTrip(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	nonce, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	aad := []byte("header")

	ct, err := AEADEncrypt(key, nonce, []byte("hello"), aad)
	if err != nil {
		t.Fatalf("AEADEncrypt: %v", err)
	}
	pt, err := AEADDecrypt(key, nonce, ct, aad)
	if err != nil {
		t.Fatalf("AEADDecrypt: %v", err)
	}
	if !bytes.Equal(pt, []byte("hello")) {
		t.Fatalf("got %q", pt)
	}

	if _, err := AEADDecrypt(key, nonce, ct, []byte("other")); err == nil {
		t.Fatal("expected failure with different associated data")
	}
	ct[0] ^= 0x01
	if _, err := AEADDecrypt(key, nonce, ct, aad); err == nil {
		t.Fatal("expected failure on tampered ciphertext")
	}
}

func TestAEADRejectsBadSizes(t *testing.T) {
	if _, err := AEADEncrypt(make([]byte, 16), make([]byte, NonceSize), nil, nil); err == nil {
		t.Fatal("expected error for 128-bit key")
	}
	if _, err := AEADEncrypt(make([]byte, KeySize), make([]byte, 8), nil, nil); err == nil {
		t.Fatal("expected error for short nonce")
	}
	if _, err := AEADDecrypt(make([]byte, KeySize), make([]byte, NonceSize), []byte{1, 2}, nil); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestSealOpen(t *testing.T) {
	secret := []byte("private key bytes")
	sealed, err := Seal("correct horse", secret, []byte("alice"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open("correct horse", sealed, []byte("alice"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("got %q", got)
	}

	if _, err := Open("wrong", sealed, []byte("alice")); err == nil {
		t.Fatal("expected error with wrong passphrase")
	}
	if _, err := Open("correct horse", sealed, []byte("bob")); err == nil {
		t.Fatal("expected error with different associated data")
	}
	if _, err := Open("correct horse", sealed[:10], nil); err != ErrSealedTooShort {
		t.Fatalf("expected ErrSealedTooShort, got %v", err)
	}
}

package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"conflict", &TrustConflictError{Peer: "bob", Stored: "AA", Observed: "BB"}, ErrTrustConflict},
		{"directory mismatch", &DirectoryMismatchError{Peer: "bob", Reported: "AA", Computed: "BB"}, ErrTrustConflict},
		{"decrypt", Decrypt("aead", errors.New("tag")), ErrDecrypt},
		{"crypto", Crypto("generate", errors.New("entropy")), ErrCryptoProvider},
		{"registration", &RegistrationError{Username: "alice", Status: 500}, ErrRegistration},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("send: %w", tc.err)
		if !errors.Is(wrapped, tc.target) {
			t.Errorf("%s: errors.Is(%v, %v) = false", tc.name, wrapped, tc.target)
		}
	}
}

func TestDecryptErrorUnwrap(t *testing.T) {
	inner := errors.New("message authentication failed")
	err := Decrypt("aead", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	var de *DecryptError
	if !errors.As(err, &de) || de.Stage != "aead" {
		t.Fatalf("errors.As DecryptError: %v", err)
	}
}

func TestDescribe(t *testing.T) {
	conflict := fmt.Errorf("resolve: %w", &TrustConflictError{Peer: "bob", Stored: "AA:01", Observed: "BB:02"})
	msg := Describe(conflict)
	if !strings.Contains(msg, "SECURITY WARNING") || !strings.Contains(msg, "AA:01") || !strings.Contains(msg, "BB:02") {
		t.Fatalf("Describe(conflict) = %q", msg)
	}
	if got := Describe(fmt.Errorf("x: %w", ErrKeyNotFound)); got != "no public key is registered for this user" {
		t.Fatalf("Describe(KeyNotFound) = %q", got)
	}
	if Describe(nil) != "" {
		t.Fatal("Describe(nil) should be empty")
	}
}

func TestDescribeDirectoryMismatch(t *testing.T) {
	err := fmt.Errorf("resolve: %w", &DirectoryMismatchError{Peer: "bob", Reported: "AA:01", Computed: "BB:02"})
	msg := Describe(err)
	if !strings.Contains(msg, "SECURITY WARNING") || !strings.Contains(msg, "reported AA:01") || !strings.Contains(msg, "key is BB:02") {
		t.Fatalf("Describe(mismatch) = %q", msg)
	}
}

// Package errs holds the error taxonomy shared by the client core.
//
// Every failure that reaches the user is one of the sentinels below, possibly
// wrapped in a typed error carrying detail. Callers match with errors.Is and
// extract detail with errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when the directory has no usable key for a peer,
	// including when the lookup times out.
	ErrKeyNotFound = errors.New("public key not found")

	// ErrTrustRejected is returned when the user declines a first-contact fingerprint.
	ErrTrustRejected = errors.New("fingerprint not trusted")

	// ErrTrustConflict is returned when a peer's fingerprint differs from the pinned one.
	ErrTrustConflict = errors.New("fingerprint mismatch")

	// ErrDecrypt is returned when a packet cannot be opened.
	ErrDecrypt = errors.New("decryption failed")

	// ErrCryptoProvider is returned when key generation or encryption fails.
	ErrCryptoProvider = errors.New("crypto provider failure")

	// ErrRegistration is returned when the public key could not be published.
	ErrRegistration = errors.New("public key registration failed")
)

type (
	// TrustConflictError describes a fingerprint that disagrees with the pinned record.
	TrustConflictError struct {
		Peer     string
		Stored   string
		Observed string
	}

	// DirectoryMismatchError is a directory response whose fingerprint does not
	// match the key it served. Nothing was pinned.
	DirectoryMismatchError struct {
		Peer     string
		Reported string
		Computed string
	}

	// DecryptError wraps a failure while opening a packet. Stage is one of
	// "role", "decode", "unwrap", "aead".
	DecryptError struct {
		Stage string
		Err   error
	}

	// CryptoError wraps a failure of the underlying crypto provider.
	CryptoError struct {
		Op  string
		Err error
	}

	// RegistrationError wraps a failed public key publish.
	RegistrationError struct {
		Username string
		Status   int
		Err      error
	}
)

func (e *TrustConflictError) Error() string {
	return fmt.Sprintf("fingerprint for %q changed: stored %s, directory %s", e.Peer, e.Stored, e.Observed)
}

func (e *TrustConflictError) Is(target error) bool { return target == ErrTrustConflict }

func (e *DirectoryMismatchError) Error() string {
	return fmt.Sprintf("directory fingerprint for %q is %s but its key hashes to %s", e.Peer, e.Reported, e.Computed)
}

func (e *DirectoryMismatchError) Is(target error) bool { return target == ErrTrustConflict }

func (e *DecryptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decryption failed at %s", e.Stage)
	}
	return fmt.Sprintf("decryption failed at %s: %v", e.Stage, e.Err)
}

func (e *DecryptError) Is(target error) bool { return target == ErrDecrypt }

func (e *DecryptError) Unwrap() error { return e.Err }

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto provider: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Is(target error) bool { return target == ErrCryptoProvider }

func (e *CryptoError) Unwrap() error { return e.Err }

func (e *RegistrationError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("register key for %q: status %d: %v", e.Username, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("register key for %q: status %d", e.Username, e.Status)
	default:
		return fmt.Sprintf("register key for %q: %v", e.Username, e.Err)
	}
}

func (e *RegistrationError) Is(target error) bool { return target == ErrRegistration }

func (e *RegistrationError) Unwrap() error { return e.Err }

// Decrypt builds a DecryptError for stage.
func Decrypt(stage string, err error) error {
	return &DecryptError{Stage: stage, Err: err}
}

// Crypto builds a CryptoError for op.
func Crypto(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}

// Describe maps err to the sentence shown to the user.
func Describe(err error) string {
	var (
		conflict *TrustConflictError
		mismatch *DirectoryMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conflict):
		return fmt.Sprintf("SECURITY WARNING: the key of %s changed (pinned %s, now %s). "+
			"This may be a man-in-the-middle. Sending stopped; reset trust only after verifying out of band.",
			conflict.Peer, conflict.Stored, conflict.Observed)
	case errors.As(err, &mismatch):
		return fmt.Sprintf("SECURITY WARNING: the directory served a key for %s that does not match its own fingerprint "+
			"(reported %s, key is %s). Sending stopped.", mismatch.Peer, mismatch.Reported, mismatch.Computed)
	case errors.Is(err, ErrTrustConflict):
		return "SECURITY WARNING: peer key changed. Sending stopped."
	case errors.Is(err, ErrKeyNotFound):
		return "no public key is registered for this user"
	case errors.Is(err, ErrTrustRejected):
		return "you did not accept this user's fingerprint"
	case errors.Is(err, ErrDecrypt):
		return "message could not be decrypted"
	case errors.Is(err, ErrCryptoProvider):
		return "encryption failed, try again"
	case errors.Is(err, ErrRegistration):
		return "could not publish your public key"
	default:
		return err.Error()
	}
}

// Package fingerprint renders public keys as human comparable digests.
//
// The digest is SHA-256 over the DER SubjectPublicKeyInfo encoding of the key,
// formatted as 32 upper-case hex bytes joined by ':'. The same encoding is used
// by the directory and by every client; changing it breaks pinned trust.
package fingerprint

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"tofu_chat/internal/cryptographic/asymmetric"
)

const shortGroups = 8

// Compute returns the fingerprint of pub.
func Compute(pub *rsa.PublicKey) (string, error) {
	der, err := asymmetric.MarshalPublicKeyDER(pub)
	if err != nil {
		return "", err
	}
	return FromSPKI(der), nil
}

// FromSPKI returns the fingerprint of a DER SubjectPublicKeyInfo.
func FromSPKI(der []byte) string {
	sum := sha256.Sum256(der)
	return format(sum[:])
}

// FromPEM parses a PEM public key and returns its fingerprint.
func FromPEM(s string) (string, error) {
	_, der, err := asymmetric.ParsePublicKeyPEM(s)
	if err != nil {
		return "", err
	}
	return FromSPKI(der), nil
}

func format(sum []byte) string {
	var b strings.Builder
	b.Grow(len(sum) * 3)
	for i, c := range sum {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
	}
	return b.String()
}

// Normalize strips separators and upper-cases fp so that plain hex and grouped
// forms compare equal.
func Normalize(fp string) string {
	r := strings.NewReplacer(":", "", " ", "", "-", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(fp)))
}

// Equal compares two fingerprints in constant time after normalization.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(na), []byte(nb)) == 1
}

// Short returns the leading groups of fp for compact display.
func Short(fp string) string {
	groups := strings.Split(fp, ":")
	if len(groups) <= shortGroups {
		return fp
	}
	return strings.Join(groups[:shortGroups], ":") + "…"
}

package asymmetric

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	KeyBits = 2048

	pemPublicKey = "PUBLIC KEY"
)

var (
	ErrNotPEM      = errors.New("not a PEM encoded public key")
	ErrNotRSA      = errors.New("public key is not RSA")
	ErrKeyTooSmall = errors.New("RSA key smaller than 2048 bits")
)

// GenerateKeyPair creates a new RSA-2048 keypair used with OAEP/SHA-256.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("rsa.GenerateKey: %w", err)
	}
	return priv, nil
}

// Encrypt wraps msg for pub with RSA-OAEP, SHA-256 and an empty label.
func Encrypt(pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa.EncryptOAEP: %w", err)
	}
	return ct, nil
}

func Decrypt(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	msg, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa.DecryptOAEP: %w", err)
	}
	return msg, nil
}

// MarshalPublicKeyDER returns the SubjectPublicKeyInfo encoding of pub.
func MarshalPublicKeyDER(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("x509.MarshalPKIXPublicKey: %w", err)
	}
	return der, nil
}

// MarshalPublicKeyPEM renders pub as "-----BEGIN PUBLIC KEY-----" with the base64
// body wrapped at 64 columns and a trailing newline.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := MarshalPublicKeyDER(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der})), nil
}

// ParsePublicKeyPEM decodes a PEM SubjectPublicKeyInfo and returns the RSA key
// along with its DER bytes.
func ParsePublicKeyPEM(s string) (*rsa.PublicKey, []byte, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != pemPublicKey {
		return nil, nil, ErrNotPEM
	}
	pub, err := ParsePublicKeyDER(block.Bytes)
	if err != nil {
		return nil, nil, err
	}
	return pub, block.Bytes, nil
}

func ParsePublicKeyDER(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("x509.ParsePKIXPublicKey: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSA
	}
	if pub.N.BitLen() < KeyBits {
		return nil, ErrKeyTooSmall
	}
	return pub, nil
}

// MarshalPrivateKey returns the PKCS#8 encoding of priv.
func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("x509.MarshalPKCS8PrivateKey: %w", err)
	}
	return der, nil
}

func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("x509.ParsePKCS8PrivateKey: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSA
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("validate private key: %w", err)
	}
	return priv, nil
}

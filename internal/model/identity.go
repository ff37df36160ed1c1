package model

import (
	"crypto/rsa"
	"time"
)

type (
	// Identity is the local user's keypair. It is created once and never mutated.
	Identity struct {
		Username   string
		PublicKey  *rsa.PublicKey
		PrivateKey *rsa.PrivateKey
	}

	// IdentityRecord is the at-rest form of an Identity. SealedPrivateKey is the
	// PKCS#8 private key sealed under the user's passphrase.
	IdentityRecord struct {
		Username         string    `json:"username" bson:"username"`
		PublicKeyPEM     string    `json:"public_key_pem" bson:"public_key_pem"`
		SealedPrivateKey []byte    `json:"sealed_private_key" bson:"sealed_private_key"`
		CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	}
)

// Complete reports whether both key halves are present.
func (r *IdentityRecord) Complete() bool {
	return r != nil && r.PublicKeyPEM != "" && len(r.SealedPrivateKey) > 0
}

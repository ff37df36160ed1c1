// Package envelope builds and opens the hybrid encrypted packet.
//
// A fresh AES-256-GCM key encrypts the plaintext. That key is then wrapped with
// RSA-OAEP twice, once for the recipient and once for the sender, so either
// party can open the packet later with only their own private key.
package envelope

import (
	"crypto/rsa"
	"errors"

	"tofu_chat/internal/cryptographic/asymmetric"
	"tofu_chat/internal/cryptographic/encryption"
	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
)

const aadPrefix = "tofu_chat/v1"

var errNotConcerned = errors.New("packet is neither from nor to this identity")

type (
	options struct {
		bindHeader bool
	}

	// Option changes how Build seals a packet.
	Option func(*options)
)

// WithHeaderBinding authenticates from and to as GCM associated data. The packet
// is marked so the opener derives the same associated data.
func WithHeaderBinding() Option {
	return func(o *options) { o.bindHeader = true }
}

// headerAAD returns the associated data for p according to its version marker.
func headerAAD(version int, from, to string) ([]byte, error) {
	switch version {
	case model.AADNone:
		return nil, nil
	case model.AADHeader:
		b := make([]byte, 0, len(aadPrefix)+len(from)+len(to)+2)
		b = append(b, aadPrefix...)
		b = append(b, 0)
		b = append(b, from...)
		b = append(b, 0)
		b = append(b, to...)
		return b, nil
	default:
		return nil, errors.New("unknown associated data version")
	}
}

// Build encrypts plaintext from one user to another.
func Build(from, to string, toPub, fromPub *rsa.PublicKey, plaintext []byte, opts ...Option) (*model.Packet, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if toPub == nil || fromPub == nil {
		return nil, errs.Crypto("build", errors.New("missing public key"))
	}

	key, err := encryption.NewKey()
	if err != nil {
		return nil, errs.Crypto("generate key", err)
	}
	defer wipe(key)

	nonce, err := encryption.NewNonce()
	if err != nil {
		return nil, errs.Crypto("generate nonce", err)
	}

	version := model.AADNone
	if o.bindHeader {
		version = model.AADHeader
	}
	aad, err := headerAAD(version, from, to)
	if err != nil {
		return nil, errs.Crypto("associated data", err)
	}

	ct, err := encryption.AEADEncrypt(key, nonce, plaintext, aad)
	if err != nil {
		return nil, errs.Crypto("aead seal", err)
	}

	encKeyTo, err := asymmetric.Encrypt(toPub, key)
	if err != nil {
		return nil, errs.Crypto("wrap key for recipient", err)
	}
	encKeyFrom, err := asymmetric.Encrypt(fromPub, key)
	if err != nil {
		return nil, errs.Crypto("wrap key for sender", err)
	}

	return &model.Packet{
		From:       from,
		To:         to,
		IV:         nonce,
		Ciphertext: ct,
		EncKeyTo:   encKeyTo,
		EncKeyFrom: encKeyFrom,
		AAD:        version,
	}, nil
}

// Concerns reports whether me may attempt to open p.
func Concerns(p *model.Packet, me string) bool {
	return p != nil && me != "" && p.Involves(me)
}

// Open recovers the plaintext of p as me. The wrapped key is selected by role:
// the sender field when me is the sender (including self-messages), the
// recipient field otherwise. Every failure is an errs.ErrDecrypt.
func Open(priv *rsa.PrivateKey, p *model.Packet, me string) ([]byte, error) {
	if priv == nil {
		return nil, errs.Decrypt("role", errors.New("missing private key"))
	}
	if !Concerns(p, me) {
		return nil, errs.Decrypt("role", errNotConcerned)
	}

	wrapped := p.EncKeyTo
	if p.From == me {
		wrapped = p.EncKeyFrom
	}
	if len(wrapped) == 0 || len(p.IV) != encryption.NonceSize || len(p.Ciphertext) == 0 {
		return nil, errs.Decrypt("decode", errors.New("malformed packet"))
	}

	key, err := asymmetric.Decrypt(priv, wrapped)
	if err != nil {
		return nil, errs.Decrypt("unwrap", err)
	}
	defer wipe(key)
	if len(key) != encryption.KeySize {
		return nil, errs.Decrypt("unwrap", errors.New("unexpected content key size"))
	}

	aad, err := headerAAD(p.AAD, p.From, p.To)
	if err != nil {
		return nil, errs.Decrypt("decode", err)
	}
	plain, err := encryption.AEADDecrypt(key, p.IV, p.Ciphertext, aad)
	if err != nil {
		return nil, errs.Decrypt("aead", err)
	}
	return plain, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package keystore

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tofu_chat/internal/cryptographic/asymmetric"
	"tofu_chat/internal/cryptographic/encryption"
	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/repository/identity"
	"tofu_chat/internal/utils/log"
)

var (
	// ErrIncompleteIdentity is returned when a stored record lacks a key half.
	// The record is left alone; regenerating requires an explicit wipe.
	ErrIncompleteIdentity = errors.New("stored identity is incomplete")

	// ErrLocked is returned when the stored private key cannot be unsealed.
	ErrLocked = errors.New("cannot unlock stored identity (wrong passphrase?)")
)

type (
	KeyStore struct {
		repo       identity.Repository
		passphrase string

		mu sync.Mutex
	}
)

func NewKeyStore(repo identity.Repository, passphrase string) *KeyStore {
	return &KeyStore{
		repo:       repo,
		passphrase: passphrase,
	}
}

// EnsureIdentity returns the stored identity for username, creating and
// persisting a fresh RSA keypair on first use.
func (k *KeyStore) EnsureIdentity(ctx context.Context, username string) (*model.Identity, error) {
	if username == "" {
		return nil, errors.New("username cannot be empty")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	rec, err := k.repo.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load identity %q: %w", username, err)
	}
	if rec != nil {
		return k.open(rec)
	}

	priv, err := asymmetric.GenerateKeyPair()
	if err != nil {
		return nil, errs.Crypto("generate identity", err)
	}

	rec, err = k.seal(username, priv)
	if err != nil {
		return nil, err
	}
	if err := k.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist identity %q: %w", username, err)
	}
	log.Info("identity created", zap.String("username", username))

	return &model.Identity{
		Username:   username,
		PublicKey:  &priv.PublicKey,
		PrivateKey: priv,
	}, nil
}

func (k *KeyStore) seal(username string, priv *rsa.PrivateKey) (*model.IdentityRecord, error) {
	pubPEM, err := asymmetric.MarshalPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, errs.Crypto("export public key", err)
	}
	der, err := asymmetric.MarshalPrivateKey(priv)
	if err != nil {
		return nil, errs.Crypto("export private key", err)
	}
	sealed, err := encryption.Seal(k.passphrase, der, []byte(username))
	if err != nil {
		return nil, errs.Crypto("seal private key", err)
	}
	return &model.IdentityRecord{
		Username:         username,
		PublicKeyPEM:     pubPEM,
		SealedPrivateKey: sealed,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (k *KeyStore) open(rec *model.IdentityRecord) (*model.Identity, error) {
	if !rec.Complete() {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteIdentity, rec.Username)
	}

	pub, _, err := asymmetric.ParsePublicKeyPEM(rec.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("stored public key for %q: %w", rec.Username, err)
	}
	der, err := encryption.Open(k.passphrase, rec.SealedPrivateKey, []byte(rec.Username))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	priv, err := asymmetric.ParsePrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("stored private key for %q: %w", rec.Username, err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("%w: key halves of %q do not match", ErrIncompleteIdentity, rec.Username)
	}

	return &model.Identity{
		Username:   rec.Username,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

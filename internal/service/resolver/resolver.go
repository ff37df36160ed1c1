package resolver

import (
	"context"
	"crypto/rsa"
	"fmt"

	"go.uber.org/zap"

	"tofu_chat/internal/cryptographic/asymmetric"
	"tofu_chat/internal/cryptographic/fingerprint"
	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/log"
)

type (
	// Directory fetches a peer's published key.
	Directory interface {
		Fetch(ctx context.Context, username string) (*model.PublicKeyRecord, error)
	}

	// Verifier runs the TOFU state machine for an observed fingerprint.
	Verifier interface {
		Verify(ctx context.Context, peer, fp string) error
	}

	// Alerter is told when the directory serves a key that contradicts its own
	// fingerprint. It must not block.
	Alerter interface {
		DirectoryMismatch(peer, reported, computed string)
	}

	// Resolver turns a username into a pinned, encryption-only public key.
	Resolver struct {
		directory Directory
		verifier  Verifier
		alerter   Alerter
	}
)

// NewResolver returns a Resolver. alerter may be nil.
func NewResolver(directory Directory, verifier Verifier, alerter Alerter) *Resolver {
	return &Resolver{
		directory: directory,
		verifier:  verifier,
		alerter:   alerter,
	}
}

// Resolve fetches peer's key, checks it against the trust ledger and returns
// it for OAEP encryption. Failures are errs.ErrKeyNotFound,
// errs.ErrTrustRejected or errs.ErrTrustConflict (a *errs.TrustConflictError
// against the pinned record, or a *errs.DirectoryMismatchError).
func (r *Resolver) Resolve(ctx context.Context, peer string) (*rsa.PublicKey, error) {
	rec, err := r.directory.Fetch(ctx, peer)
	if err != nil {
		return nil, err
	}

	pub, der, err := asymmetric.ParsePublicKeyPEM(rec.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: unusable key: %v", errs.ErrKeyNotFound, peer, err)
	}

	// The fingerprint shown and pinned is always computed locally.
	fp := fingerprint.FromSPKI(der)
	if rec.Fingerprint != "" && !fingerprint.Equal(rec.Fingerprint, fp) {
		log.Warn("directory fingerprint does not match key",
			zap.String("peer", peer),
			zap.String("reported", rec.Fingerprint),
			zap.String("computed", fp))
		if r.alerter != nil {
			r.alerter.DirectoryMismatch(peer, rec.Fingerprint, fp)
		}
		return nil, &errs.DirectoryMismatchError{Peer: peer, Reported: rec.Fingerprint, Computed: fp}
	}

	if err := r.verifier.Verify(ctx, peer, fp); err != nil {
		return nil, err
	}

	return &rsa.PublicKey{N: pub.N, E: pub.E}, nil
}

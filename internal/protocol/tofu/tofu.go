// Package tofu implements trust-on-first-use pinning of peer fingerprints.
//
// Per peer the ledger is Unknown (no record), Trusted (record matches) or
// Conflicted (record differs from what was just observed). Only an accepted
// first-contact prompt writes a record; a conflict never overwrites one.
package tofu

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tofu_chat/internal/cryptographic/fingerprint"
	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/keylock"
	"tofu_chat/internal/utils/log"
)

// Decision is the answer to a first-contact prompt.
type Decision int

const (
	Reject Decision = iota
	Accept
)

// State is where a peer stands in the trust ledger for one observation.
type State int

const (
	Unknown State = iota
	Trusted
	Conflicted
)

func (s State) String() string {
	switch s {
	case Trusted:
		return "trusted"
	case Conflicted:
		return "conflicted"
	default:
		return "unknown"
	}
}

type (
	// Store is the persistent trust ledger.
	Store interface {
		Get(ctx context.Context, peer string) (*model.TrustRecord, error)
		Put(ctx context.Context, record *model.TrustRecord) error
	}

	// Policy answers the first-contact question for a peer and fingerprint.
	Policy interface {
		Decide(ctx context.Context, peer, fp string) (Decision, error)
	}

	// PolicyFunc adapts a plain function to Policy.
	PolicyFunc func(ctx context.Context, peer, fp string) (Decision, error)

	// Alerter is told about fingerprint conflicts. It must not block.
	Alerter interface {
		Conflict(peer, stored, observed string)
	}

	// Verifier runs the per-peer state machine against a Store. Decisions for
	// the same peer are serialized; different peers proceed concurrently.
	Verifier struct {
		store   Store
		policy  Policy
		alerter Alerter
		now     func() time.Time

		locks keylock.Map
	}
)

func (f PolicyFunc) Decide(ctx context.Context, peer, fp string) (Decision, error) {
	return f(ctx, peer, fp)
}

// Fixed policies for non-interactive use.
var (
	AcceptAll Policy = PolicyFunc(func(context.Context, string, string) (Decision, error) { return Accept, nil })
	RejectAll Policy = PolicyFunc(func(context.Context, string, string) (Decision, error) { return Reject, nil })
)

// NewVerifier returns a Verifier. alerter may be nil.
func NewVerifier(store Store, policy Policy, alerter Alerter) *Verifier {
	return &Verifier{
		store:   store,
		policy:  policy,
		alerter: alerter,
		now:     time.Now,
	}
}

// State reports the ledger state of peer against an observed fingerprint
// without prompting or writing.
func (v *Verifier) State(ctx context.Context, peer, observed string) (State, *model.TrustRecord, error) {
	rec, err := v.store.Get(ctx, peer)
	if err != nil {
		return Unknown, nil, fmt.Errorf("trust store get %q: %w", peer, err)
	}
	switch {
	case rec == nil:
		return Unknown, nil, nil
	case fingerprint.Equal(rec.Fingerprint, observed):
		return Trusted, rec, nil
	default:
		return Conflicted, rec, nil
	}
}

// Verify runs the state machine for peer with the freshly observed fingerprint.
// It returns nil only when the peer ends up Trusted.
func (v *Verifier) Verify(ctx context.Context, peer, observed string) error {
	unlock := v.locks.Lock(peer)
	defer unlock()

	state, rec, err := v.State(ctx, peer, observed)
	if err != nil {
		return err
	}

	switch state {
	case Trusted:
		return nil

	case Conflicted:
		log.Warn("fingerprint conflict",
			zap.String("peer", peer),
			zap.String("stored", rec.Fingerprint),
			zap.String("observed", observed))
		if v.alerter != nil {
			v.alerter.Conflict(peer, rec.Fingerprint, observed)
		}
		return &errs.TrustConflictError{Peer: peer, Stored: rec.Fingerprint, Observed: observed}
	}

	decision, err := v.policy.Decide(ctx, peer, observed)
	if err != nil {
		return fmt.Errorf("trust prompt for %q: %w", peer, err)
	}
	if decision != Accept {
		log.Info("fingerprint rejected", zap.String("peer", peer), zap.String("fingerprint", observed))
		return fmt.Errorf("%w: %s", errs.ErrTrustRejected, peer)
	}

	rec = &model.TrustRecord{
		Peer:        peer,
		Fingerprint: observed,
		FirstSeenAt: v.now().UTC(),
	}
	if err := v.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("trust store put %q: %w", peer, err)
	}
	log.Info("fingerprint pinned", zap.String("peer", peer), zap.String("fingerprint", observed))
	return nil
}

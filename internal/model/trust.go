package model

import "time"

type (
	// TrustRecord pins the fingerprint accepted for a peer on first contact.
	TrustRecord struct {
		Peer        string    `json:"peer"`
		Fingerprint string    `json:"fingerprint"`
		FirstSeenAt time.Time `json:"first_seen_at"`
	}
)

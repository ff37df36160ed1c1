package model

import "time"

// Associated data versions carried in Packet.AAD.
const (
	AADNone   = 0
	AADHeader = 1
)

type (
	// Packet is the wire envelope. Byte slices are standard base64 in JSON.
	Packet struct {
		From       string     `json:"from" bson:"from"`
		To         string     `json:"to" bson:"to"`
		IV         []byte     `json:"iv_b64" bson:"iv"`
		Ciphertext []byte     `json:"ct_b64" bson:"ct"`
		EncKeyTo   []byte     `json:"enc_key_to_b64" bson:"enc_key_to"`
		EncKeyFrom []byte     `json:"enc_key_from_b64" bson:"enc_key_from"`
		AAD        int        `json:"aad_v,omitempty" bson:"aad_v,omitempty"`
		CreatedAt  *time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
	}

	// DisplayMessage is what the session hands to the display for one packet.
	DisplayMessage struct {
		From          string
		To            string
		Text          string
		CreatedAt     *time.Time
		Undecryptable bool
		Err           error
	}
)

// Involves reports whether username is the sender or the recipient.
func (p *Packet) Involves(username string) bool {
	return p.From == username || p.To == username
}

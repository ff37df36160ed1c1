package model

import "encoding/json"

// Frame types exchanged over the websocket.
const (
	FrameUsers          = "users"
	FrameHistoryPackets = "history_packets"
	FrameNewPacket      = "new_packet"
	FrameSendPacket     = "send_packet"
	FrameError          = "error"
)

type (
	Frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}

	// Event is a decoded inbound frame. Exactly one of the payload fields is set
	// according to Type.
	//
	// A packet that failed to decode is still delivered in its slot, carrying
	// whatever of from, to and created_at could be read, with the failure in
	// PacketErrs[i] (history) or PacketErr (live). PacketErrs is either nil or
	// as long as Packets.
	Event struct {
		Type       string
		Users      []string
		Packets    []*Packet
		PacketErrs []error
		Packet     *Packet
		PacketErr  error
		Err        string
	}
)

// NewFrame marshals v as the payload of a frame of type typ.
func NewFrame(typ string, v any) (*Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: typ, Data: data}, nil
}

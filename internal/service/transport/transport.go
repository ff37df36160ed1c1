// Package transport is the client side of the relay websocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/log"
)

var (
	// ErrAlreadyConnected is returned by Dial when the username is online elsewhere.
	ErrAlreadyConnected = errors.New("user already connected")
	ErrClosed           = errors.New("connection closed")
)

type Conn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	events    chan model.Event
	done      chan struct{}
	closeOnce sync.Once
}

// WebsocketURL maps an http(s) base URL to the relay's websocket endpoint.
func WebsocketURL(baseURL, username string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"username": {username}}.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, baseURL, username string) (*Conn, error) {
	wsURL, err := WebsocketURL(baseURL, username)
	if err != nil {
		return nil, err
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, username)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Conn{
		conn:   ws,
		events: make(chan model.Event, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events yields decoded inbound frames. It is closed when the connection ends.
func (c *Conn) Events() <-chan model.Event {
	return c.events
}

func (c *Conn) Send(ctx context.Context, packet *model.Packet) error {
	frame, err := model.NewFrame(model.FrameSendPacket, packet)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(frame)
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn("relay connection lost", zap.Error(err))
			}
			return
		}

		ev, err := Decode(data)
		if err != nil {
			log.Warn("drop malformed frame", zap.Error(err))
			continue
		}

		select {
		case c.events <- *ev:
		case <-c.done:
			return
		}
	}
}

// Decode turns one relay frame into an Event. A malformed packet does not fail
// the frame; it is reported in its own slot as an errs.ErrDecrypt.
func Decode(data []byte) (*model.Event, error) {
	var frame model.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}

	ev := &model.Event{Type: frame.Type}
	var err error
	switch frame.Type {
	case model.FrameUsers:
		err = json.Unmarshal(frame.Data, &ev.Users)
	case model.FrameHistoryPackets:
		var raws []json.RawMessage
		if err = json.Unmarshal(frame.Data, &raws); err != nil {
			break
		}
		ev.Packets = make([]*model.Packet, len(raws))
		for i, raw := range raws {
			p, perr := decodePacket(raw)
			ev.Packets[i] = p
			if perr != nil {
				if ev.PacketErrs == nil {
					ev.PacketErrs = make([]error, len(raws))
				}
				ev.PacketErrs[i] = perr
			}
		}
	case model.FrameNewPacket:
		ev.Packet, ev.PacketErr = decodePacket(frame.Data)
	case model.FrameError:
		err = json.Unmarshal(frame.Data, &ev.Err)
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", frame.Type, err)
	}
	return ev, nil
}

// decodePacket always returns a packet. On failure it holds only the header
// fields that could be read.
func decodePacket(raw json.RawMessage) (*model.Packet, error) {
	var p model.Packet
	err := json.Unmarshal(raw, &p)
	if err == nil {
		return &p, nil
	}

	var hdr struct {
		From      string     `json:"from"`
		To        string     `json:"to"`
		CreatedAt *time.Time `json:"created_at"`
	}
	if herr := json.Unmarshal(raw, &hdr); herr != nil {
		hdr.From, hdr.To, hdr.CreatedAt = "", "", nil
	}
	log.Warn("malformed packet from relay", zap.String("from", hdr.From), zap.String("to", hdr.To), zap.Error(err))
	return &model.Packet{From: hdr.From, To: hdr.To, CreatedAt: hdr.CreatedAt}, errs.Decrypt("decode", err)
}

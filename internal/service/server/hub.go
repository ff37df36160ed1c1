package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/log"
)

var (
	errMissingField = errors.New("packet is missing required fields")
	errSpoofed      = errors.New("from does not match the connected user")
	errTooLarge     = errors.New("packet exceeds size limits")
)

type client struct {
	username string
	conn     *websocket.Conn
	mu       sync.Mutex
}

func (c *client) writeFrame(typ string, v any) error {
	frame, err := model.NewFrame(typ, v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (s *HttpServer) HandleWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.URL.Query().Get("username"))
		if username == "" {
			http.Error(w, "username cannot be empty", http.StatusBadRequest)
			return
		}

		if !s.reserve(username) {
			http.Error(w, "user already connected", http.StatusConflict)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.release(username)
			log.Error("websocket upgrade failed", zap.String("username", username), zap.Error(err))
			return
		}
		conn.SetReadLimit(s.maxFrame())

		c := &client{username: username, conn: conn}
		s.mu.Lock()
		s.clients[username] = c
		s.mu.Unlock()
		log.Info("user connected", zap.String("username", username))

		s.sendHistory(r.Context(), c)
		s.broadcastRoster()
		go s.processWSMessage(c)
	}
}

// maxFrame is the largest send_packet frame that can still pass validate.
func (s *HttpServer) maxFrame() int64 {
	return int64(s.limits.MaxCiphertext + 2*s.limits.MaxEncKey + frameSlack)
}

// reserve claims username so a concurrent connect with the same name is refused
// before the upgrade completes.
func (s *HttpServer) reserve(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[username]; ok {
		return false
	}
	s.clients[username] = nil
	return true
}

func (s *HttpServer) release(username string) {
	s.mu.Lock()
	delete(s.clients, username)
	s.mu.Unlock()
}

func (s *HttpServer) sendHistory(ctx context.Context, c *client) {
	packets, err := s.messages.History(ctx, c.username, s.limits.History)
	if err != nil {
		log.Error("load history failed", zap.String("username", c.username), zap.Error(err))
		packets = nil
	}
	if packets == nil {
		packets = []*model.Packet{}
	}
	if err := c.writeFrame(model.FrameHistoryPackets, packets); err != nil {
		log.Debug("send history failed", zap.String("username", c.username), zap.Error(err))
	}
}

func (s *HttpServer) processWSMessage(c *client) {
	defer func() {
		s.release(c.username)
		c.conn.Close()
		log.Info("user disconnected", zap.String("username", c.username))
		s.broadcastRoster()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Warn("oversized frame", zap.String("username", c.username), zap.Int64("limit", s.maxFrame()))
				return
			}
			log.Debug("web socket closed", zap.String("username", c.username), zap.Error(err))
			return
		}

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug("unmarshal frame failed", zap.String("username", c.username), zap.Error(err))
			s.reply(c, "malformed frame")
			continue
		}

		if frame.Type != model.FrameSendPacket {
			s.reply(c, fmt.Sprintf("unsupported frame type %q", frame.Type))
			continue
		}

		var packet model.Packet
		if err := json.Unmarshal(frame.Data, &packet); err != nil {
			log.Debug("unmarshal packet failed", zap.String("username", c.username), zap.Error(err))
			s.reply(c, "malformed packet")
			continue
		}

		if err := s.relay(c, &packet); err != nil {
			s.reply(c, err.Error())
		}
	}
}

func (s *HttpServer) relay(c *client, packet *model.Packet) error {
	if err := s.validate(c.username, packet); err != nil {
		if errors.Is(err, errSpoofed) {
			log.Warn("spoof blocked", zap.String("username", c.username), zap.String("from", packet.From))
		}
		return err
	}

	ts := s.now()
	packet.CreatedAt = &ts

	if err := s.messages.Insert(context.Background(), packet); err != nil {
		log.Error("store packet failed", zap.Error(err))
		return errors.New("store packet failed")
	}

	s.mu.RLock()
	recipient := s.clients[packet.To]
	s.mu.RUnlock()

	if recipient != nil && recipient != c {
		if err := recipient.writeFrame(model.FrameNewPacket, packet); err != nil {
			log.Debug("deliver packet failed", zap.String("to", packet.To), zap.Error(err))
		}
	}
	if err := c.writeFrame(model.FrameNewPacket, packet); err != nil {
		log.Debug("echo packet failed", zap.String("to", c.username), zap.Error(err))
	}
	return nil
}

func (s *HttpServer) validate(sender string, p *model.Packet) error {
	p.From = strings.TrimSpace(p.From)
	p.To = strings.TrimSpace(p.To)

	if p.From == "" || p.To == "" || len(p.IV) == 0 || len(p.Ciphertext) == 0 ||
		len(p.EncKeyTo) == 0 || len(p.EncKeyFrom) == 0 {
		return errMissingField
	}

	if p.From != sender {
		return errSpoofed
	}

	enc := base64.StdEncoding
	if enc.EncodedLen(len(p.Ciphertext)) > s.limits.MaxCiphertext ||
		enc.EncodedLen(len(p.EncKeyTo)) > s.limits.MaxEncKey ||
		enc.EncodedLen(len(p.EncKeyFrom)) > s.limits.MaxEncKey {
		return errTooLarge
	}
	return nil
}

func (s *HttpServer) reply(c *client, detail string) {
	if err := c.writeFrame(model.FrameError, detail); err != nil {
		log.Debug("send error frame failed", zap.String("username", c.username), zap.Error(err))
	}
}

// Online returns the connected usernames in sorted order.
func (s *HttpServer) Online() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.clients))
	for name, c := range s.clients {
		if c != nil {
			users = append(users, name)
		}
	}
	sort.Strings(users)
	return users
}

func (s *HttpServer) broadcastRoster() {
	users := s.Online()

	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c != nil {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.writeFrame(model.FrameUsers, users); err != nil {
			log.Debug("send roster failed", zap.String("username", c.username), zap.Error(err))
		}
	}
}

func (s *HttpServer) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c != nil {
			c.conn.Close()
		}
	}
}

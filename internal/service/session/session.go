// Package session drives one user's chat: identity, registration, resolving
// peers, sending and opening packets.
package session

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tofu_chat/internal/cryptographic/asymmetric"
	"tofu_chat/internal/cryptographic/fingerprint"
	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/protocol/envelope"
	"tofu_chat/internal/utils/keylock"
	"tofu_chat/internal/utils/log"
)

var (
	ErrNotStarted = errors.New("session not started")
	ErrStarted    = errors.New("session already started")
)

type (
	KeyStore interface {
		EnsureIdentity(ctx context.Context, username string) (*model.Identity, error)
	}

	// Registrar publishes the local public key and returns the fingerprint the
	// directory computed for it.
	Registrar interface {
		Register(ctx context.Context, username, publicKeyPEM string) (string, error)
	}

	Resolver interface {
		Resolve(ctx context.Context, peer string) (*rsa.PublicKey, error)
	}

	Transport interface {
		Send(ctx context.Context, packet *model.Packet) error
		Events() <-chan model.Event
		Close() error
	}

	DialFunc func(ctx context.Context, username string) (Transport, error)

	// Display receives everything the user should see. Calls may come from
	// several goroutines.
	Display interface {
		Roster(users []string)
		Message(msg model.DisplayMessage)
		SendFailed(peer string, err error)
	}

	Deps struct {
		Username  string
		KeyStore  KeyStore
		Registrar Registrar
		Resolver  Resolver
		Dial      DialFunc
		Display   Display

		// BindHeaders authenticates from and to as associated data on outgoing packets.
		BindHeaders bool
		// Workers bounds concurrent decryption of a history batch.
		Workers int
	}

	Controller struct {
		deps Deps

		mu          sync.Mutex
		identity    *model.Identity
		fingerprint string
		transport   Transport
		done        chan struct{}

		peerLocks keylock.Map
	}
)

func New(deps Deps) *Controller {
	if deps.Workers <= 0 {
		deps.Workers = runtime.NumCPU()
	}
	return &Controller{
		deps: deps,
	}
}

// Start loads or creates the identity, publishes the public key and connects
// to the relay. The session does not start if registration fails.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		return ErrStarted
	}

	id, err := c.deps.KeyStore.EnsureIdentity(ctx, c.deps.Username)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	pemStr, err := asymmetric.MarshalPublicKeyPEM(id.PublicKey)
	if err != nil {
		return errs.Crypto("export public key", err)
	}
	fp, err := fingerprint.Compute(id.PublicKey)
	if err != nil {
		return errs.Crypto("fingerprint", err)
	}

	reported, err := c.deps.Registrar.Register(ctx, c.deps.Username, pemStr)
	if err != nil {
		if !errors.Is(err, errs.ErrRegistration) {
			err = &errs.RegistrationError{Username: c.deps.Username, Err: err}
		}
		return err
	}
	if reported != "" && !fingerprint.Equal(reported, fp) {
		log.Warn("directory reported a different fingerprint for our key",
			zap.String("local", fp), zap.String("reported", reported))
	}

	t, err := c.deps.Dial(ctx, c.deps.Username)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.identity = id
	c.fingerprint = fp
	c.transport = t
	c.done = make(chan struct{})
	log.Info("session started", zap.String("username", c.deps.Username), zap.String("fingerprint", fp))

	go c.loop(t, c.done)
	return nil
}

// Fingerprint is the local identity's fingerprint once started.
func (c *Controller) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprint
}

// Done is closed when the relay connection ends.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Controller) Close() error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

func (c *Controller) started() (*model.Identity, Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil, nil, ErrNotStarted
	}
	return c.identity, c.transport, nil
}

// Send encrypts text for peer and hands it to the relay. A failure aborts only
// this send; it is returned and reported to the display.
func (c *Controller) Send(ctx context.Context, peer, text string) error {
	err := c.send(ctx, peer, text)
	if err != nil {
		log.Info("send failed", zap.String("peer", peer), zap.Error(err))
		c.deps.Display.SendFailed(peer, err)
	}
	return err
}

func (c *Controller) send(ctx context.Context, peer, text string) error {
	id, t, err := c.started()
	if err != nil {
		return err
	}

	// Same-peer sends reach the transport in submission order.
	unlock := c.peerLocks.Lock(peer)
	defer unlock()

	peerPub := id.PublicKey
	if peer != id.Username {
		peerPub, err = c.deps.Resolver.Resolve(ctx, peer)
		if err != nil {
			return err
		}
	}

	var opts []envelope.Option
	if c.deps.BindHeaders {
		opts = append(opts, envelope.WithHeaderBinding())
	}
	packet, err := envelope.Build(id.Username, peer, peerPub, id.PublicKey, []byte(text), opts...)
	if err != nil {
		return err
	}

	if err := t.Send(ctx, packet); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

func (c *Controller) loop(t Transport, done chan struct{}) {
	defer close(done)

	for ev := range t.Events() {
		switch ev.Type {
		case model.FrameUsers:
			c.deps.Display.Roster(ev.Users)
		case model.FrameHistoryPackets:
			for _, msg := range c.OpenBatch(ev.Packets, ev.PacketErrs) {
				c.deps.Display.Message(msg)
			}
		case model.FrameNewPacket:
			if msg, ok := c.openOne(ev.Packet, ev.PacketErr); ok {
				c.deps.Display.Message(msg)
			}
		case model.FrameError:
			log.Warn("relay rejected packet", zap.String("detail", ev.Err))
			c.deps.Display.SendFailed("", fmt.Errorf("relay: %s", ev.Err))
		}
	}
	log.Info("relay connection closed", zap.String("username", c.deps.Username))
}

// OpenBatch opens packets concurrently and returns the ones addressed to or
// sent by this user, in their original order. decodeErrs is nil or parallel
// to packets; a slot with an error is shown as undecryptable.
func (c *Controller) OpenBatch(packets []*model.Packet, decodeErrs []error) []model.DisplayMessage {
	results := make([]*model.DisplayMessage, len(packets))

	var g errgroup.Group
	g.SetLimit(c.deps.Workers)
	for i, p := range packets {
		var decodeErr error
		if i < len(decodeErrs) {
			decodeErr = decodeErrs[i]
		}
		g.Go(func() error {
			if msg, ok := c.openOne(p, decodeErr); ok {
				results[i] = &msg
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.DisplayMessage, 0, len(packets))
	for _, msg := range results {
		if msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}

// openOne returns ok=false for packets that are not this user's concern. A
// packet whose header could not be read at all is still reported, since the
// relay only sends this user its own traffic.
func (c *Controller) openOne(p *model.Packet, decodeErr error) (model.DisplayMessage, bool) {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()

	if p == nil || id == nil {
		return model.DisplayMessage{}, false
	}
	unattributed := decodeErr != nil && p.From == "" && p.To == ""
	if !unattributed && !envelope.Concerns(p, id.Username) {
		return model.DisplayMessage{}, false
	}

	msg := model.DisplayMessage{From: p.From, To: p.To, CreatedAt: p.CreatedAt}
	if decodeErr != nil {
		msg.Undecryptable = true
		msg.Err = decodeErr
		return msg, true
	}
	plaintext, err := envelope.Open(id.PrivateKey, p, id.Username)
	if err != nil {
		log.Debug("packet could not be opened", zap.String("from", p.From), zap.String("to", p.To), zap.Error(err))
		msg.Undecryptable = true
		msg.Err = err
		return msg, true
	}
	msg.Text = string(plaintext)
	return msg, true
}

package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tofu_chat/internal/cryptographic/asymmetric"
	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/protocol/envelope"
	"tofu_chat/internal/protocol/tofu"
	"tofu_chat/internal/repository/identity"
	"tofu_chat/internal/repository/message"
	"tofu_chat/internal/repository/publickey"
	"tofu_chat/internal/repository/trust"
	"tofu_chat/internal/service/directory"
	"tofu_chat/internal/service/keystore"
	"tofu_chat/internal/service/resolver"
	"tofu_chat/internal/service/server"
	"tofu_chat/internal/service/session"
	"tofu_chat/internal/service/transport"
)

type recorder struct {
	mu       sync.Mutex
	roster   []string
	messages []model.DisplayMessage
	failures []error
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 128)}
}

func (r *recorder) Roster(users []string) {
	r.mu.Lock()
	r.roster = users
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) Message(msg model.DisplayMessage) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) SendFailed(_ string, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) message(i int) model.DisplayMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[i]
}

// waitFor blocks until cond holds or fails the test.
func (r *recorder) waitFor(t *testing.T, cond func(r *recorder) bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		ok := cond(r)
		r.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-r.notify:
		case <-timeout:
			t.Fatal("timed out waiting for display")
		}
	}
}

type user struct {
	ctl     *session.Controller
	display *recorder
	trust   *trust.MemoryStore
}

func newUser(t *testing.T, baseURL, name string, policy tofu.Policy) *user {
	t.Helper()
	display := newRecorder()
	store := trust.NewMemoryStore()
	dir := directory.NewClient(baseURL, nil, 2*time.Second)

	ctl := session.New(session.Deps{
		Username:  name,
		KeyStore:  keystore.NewKeyStore(identity.NewMemoryRepo(), "pass-"+name),
		Registrar: dir,
		Resolver:  resolver.NewResolver(dir, tofu.NewVerifier(store, policy, nil), nil),
		Dial: func(ctx context.Context, username string) (session.Transport, error) {
			conn, err := transport.Dial(ctx, baseURL, username)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Display:     display,
		BindHeaders: true,
	})
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start %s: %v", name, err)
	}
	t.Cleanup(func() { ctl.Close() })
	return &user{ctl: ctl, display: display, trust: store}
}

func TestAliceAndBob(t *testing.T) {
	srv := httptest.NewServer(server.NewHttpServer(publickey.NewMemoryRepo(), message.NewMemoryRepo(), server.Limits{}).Router())
	defer srv.Close()

	alice := newUser(t, srv.URL, "alice", tofu.AcceptAll)
	bob := newUser(t, srv.URL, "bob", tofu.AcceptAll)

	alice.display.waitFor(t, func(r *recorder) bool { return len(r.roster) == 2 })

	if err := alice.ctl.Send(context.Background(), "bob", "hi bob"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	bob.display.waitFor(t, func(r *recorder) bool { return len(r.messages) == 1 })
	got := bob.display.message(0)
	if got.Undecryptable || got.Text != "hi bob" || got.From != "alice" || got.CreatedAt == nil {
		t.Fatalf("bob saw %+v", got)
	}

	// The sender opens its own echo through the sender wrap.
	alice.display.waitFor(t, func(r *recorder) bool { return len(r.messages) == 1 })
	if echo := alice.display.message(0); echo.Text != "hi bob" || echo.To != "bob" {
		t.Fatalf("alice saw %+v", echo)
	}

	rec, _ := alice.trust.Get(context.Background(), "bob")
	if rec == nil || rec.Fingerprint != bob.ctl.Fingerprint() {
		t.Fatalf("alice pinned %+v, bob is %s", rec, bob.ctl.Fingerprint())
	}

	if err := bob.ctl.Send(context.Background(), "alice", "hello alice"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	alice.display.waitFor(t, func(r *recorder) bool { return len(r.messages) == 2 })
	if m := alice.display.message(1); m.Text != "hello alice" {
		t.Fatalf("alice saw %+v", m)
	}

	// A third user with history replay sees nothing it is not party to.
	carol := newUser(t, srv.URL, "carol", tofu.AcceptAll)
	carol.display.waitFor(t, func(r *recorder) bool { return len(r.roster) == 3 })
	carol.display.mu.Lock()
	n := len(carol.display.messages)
	carol.display.mu.Unlock()
	if n != 0 {
		t.Fatalf("carol saw %d messages", n)
	}
}

func TestSendFailuresAreClassified(t *testing.T) {
	srv := httptest.NewServer(server.NewHttpServer(publickey.NewMemoryRepo(), message.NewMemoryRepo(), server.Limits{}).Router())
	defer srv.Close()

	alice := newUser(t, srv.URL, "alice", tofu.RejectAll)
	newUser(t, srv.URL, "bob", tofu.AcceptAll)

	err := alice.ctl.Send(context.Background(), "nobody", "hi")
	if !errors.Is(err, errs.ErrKeyNotFound) {
		t.Fatalf("unknown peer: %v", err)
	}

	err = alice.ctl.Send(context.Background(), "bob", "hi")
	if !errors.Is(err, errs.ErrTrustRejected) {
		t.Fatalf("rejected peer: %v", err)
	}

	alice.display.waitFor(t, func(r *recorder) bool { return len(r.failures) == 2 })

	// Self-messages skip resolution and still work.
	if err := alice.ctl.Send(context.Background(), "alice", "note to self"); err != nil {
		t.Fatalf("self send: %v", err)
	}
	alice.display.waitFor(t, func(r *recorder) bool { return len(r.messages) == 1 })
	if m := alice.display.message(0); m.Text != "note to self" {
		t.Fatalf("self message %+v", m)
	}
}

type failingRegistrar struct{}

func (failingRegistrar) Register(context.Context, string, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestStartStopsOnRegistrationFailure(t *testing.T) {
	dialed := false
	ctl := session.New(session.Deps{
		Username:  "alice",
		KeyStore:  keystore.NewKeyStore(identity.NewMemoryRepo(), "pw"),
		Registrar: failingRegistrar{},
		Dial: func(context.Context, string) (session.Transport, error) {
			dialed = true
			return nil, errors.New("unexpected dial")
		},
		Display: newRecorder(),
	})

	err := ctl.Start(context.Background())
	if !errors.Is(err, errs.ErrRegistration) {
		t.Fatalf("want ErrRegistration, got %v", err)
	}
	if dialed {
		t.Fatal("dialed relay after failed registration")
	}
	if err := ctl.Send(context.Background(), "bob", "hi"); !errors.Is(err, session.ErrNotStarted) {
		t.Fatalf("send before start: %v", err)
	}
}

type staticKeyStore struct{ id *model.Identity }

func (s staticKeyStore) EnsureIdentity(context.Context, string) (*model.Identity, error) {
	return s.id, nil
}

type okRegistrar struct{}

func (okRegistrar) Register(context.Context, string, string) (string, error) { return "", nil }

type chanTransport struct{ events chan model.Event }

func (c *chanTransport) Send(context.Context, *model.Packet) error { return nil }
func (c *chanTransport) Events() <-chan model.Event { return c.events }
func (c *chanTransport) Close() error { return nil }

func identityFor(t *testing.T, name string) *model.Identity {
	t.Helper()
	priv, err := asymmetric.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return &model.Identity{Username: name, PublicKey: &priv.PublicKey, PrivateKey: priv}
}

func TestHistoryBatchKeepsOrderAndMarksFailures(t *testing.T) {
	bob := identityFor(t, "bob")
	alice := identityFor(t, "alice")
	eve := identityFor(t, "eve")

	good1, _ := envelope.Build("alice", "bob", bob.PublicKey, alice.PublicKey, []byte("one"))
	forEve, _ := envelope.Build("alice", "eve", eve.PublicKey, alice.PublicKey, []byte("not for bob"))
	// Addressed to bob but wrapped for eve: bob cannot open it.
	broken, _ := envelope.Build("alice", "bob", eve.PublicKey, alice.PublicKey, []byte("lost"))
	good2, _ := envelope.Build("bob", "alice", alice.PublicKey, bob.PublicKey, []byte("two"))

	tr := &chanTransport{events: make(chan model.Event, 4)}
	display := newRecorder()
	ctl := session.New(session.Deps{
		Username:  "bob",
		KeyStore:  staticKeyStore{id: bob},
		Registrar: okRegistrar{},
		Dial:      func(context.Context, string) (session.Transport, error) { return tr, nil },
		Display:   display,
		Workers:   3,
	})
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tr.events <- model.Event{Type: model.FrameHistoryPackets, Packets: []*model.Packet{good1, forEve, broken, good2}}
	close(tr.events)
	<-ctl.Done()

	display.mu.Lock()
	defer display.mu.Unlock()
	if len(display.messages) != 3 {
		t.Fatalf("displayed %d messages, want 3", len(display.messages))
	}
	if display.messages[0].Text != "one" || display.messages[2].Text != "two" {
		t.Fatalf("order not preserved: %+v", display.messages)
	}
	if m := display.messages[1]; !m.Undecryptable || !errors.Is(m.Err, errs.ErrDecrypt) {
		t.Fatalf("broken packet displayed as %+v", m)
	}
}

func TestHistoryWithMalformedPacketShowsMarkerInPlace(t *testing.T) {
	bob := identityFor(t, "bob")
	alice := identityFor(t, "alice")

	first, _ := envelope.Build("alice", "bob", bob.PublicKey, alice.PublicKey, []byte("before"))
	last, _ := envelope.Build("bob", "alice", alice.PublicKey, bob.PublicKey, []byte("after"))
	firstJSON, _ := json.Marshal(first)
	lastJSON, _ := json.Marshal(last)
	broken := `{"from":"alice","to":"bob","iv_b64":"!!not-base64!!","ct_b64":"AAAA","enc_key_to_b64":"AA==","enc_key_from_b64":"AA=="}`

	frame := fmt.Sprintf(`{"type":"history_packets","data":[%s,%s,%s]}`, firstJSON, broken, lastJSON)
	ev, err := transport.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tr := &chanTransport{events: make(chan model.Event, 2)}
	display := newRecorder()
	ctl := session.New(session.Deps{
		Username:  "bob",
		KeyStore:  staticKeyStore{id: bob},
		Registrar: okRegistrar{},
		Dial:      func(context.Context, string) (session.Transport, error) { return tr, nil },
		Display:   display,
	})
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tr.events <- *ev
	liveFrame := `{"type":"new_packet","data":{"from":"alice","to":"bob","ct_b64":"%%%"}}`
	live, err := transport.Decode([]byte(liveFrame))
	if err != nil {
		t.Fatalf("Decode live: %v", err)
	}
	tr.events <- *live
	close(tr.events)
	<-ctl.Done()

	display.mu.Lock()
	defer display.mu.Unlock()
	if len(display.messages) != 4 {
		t.Fatalf("displayed %d messages, want 4", len(display.messages))
	}
	if display.messages[0].Text != "before" || display.messages[2].Text != "after" {
		t.Fatalf("good packets not shown in order: %+v", display.messages)
	}
	for _, i := range []int{1, 3} {
		m := display.messages[i]
		if !m.Undecryptable || !errors.Is(m.Err, errs.ErrDecrypt) || m.From != "alice" {
			t.Fatalf("message %d = %+v, want undecryptable marker from alice", i, m)
		}
	}
}

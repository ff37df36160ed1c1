package tofu_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tofu_chat/internal/errs"
	"tofu_chat/internal/protocol/tofu"
	"tofu_chat/internal/repository/trust"
)

const (
	fp1 = "AA:BB:CC:01"
	fp2 = "AA:BB:CC:02"
)

type countingPolicy struct {
	calls    atomic.Int32
	decision tofu.Decision
	delay    time.Duration
}

func (p *countingPolicy) Decide(ctx context.Context, peer, fp string) (tofu.Decision, error) {
	p.calls.Add(1)
	time.Sleep(p.delay)
	return p.decision, nil
}

type recordingAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (a *recordingAlerter) Conflict(peer, stored, observed string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, peer+" "+stored+" "+observed)
}

func TestFirstContactAcceptThenSilent(t *testing.T) {
	ctx := context.Background()
	store := trust.NewMemoryStore()
	policy := &countingPolicy{decision: tofu.Accept}
	v := tofu.NewVerifier(store, policy, nil)

	if err := v.Verify(ctx, "bob", fp1); err != nil {
		t.Fatalf("first contact: %v", err)
	}
	rec, err := store.Get(ctx, "bob")
	if err != nil || rec == nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.Fingerprint != fp1 || rec.FirstSeenAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := v.Verify(ctx, "bob", fp1); err != nil {
		t.Fatalf("second contact: %v", err)
	}
	if n := policy.calls.Load(); n != 1 {
		t.Fatalf("policy called %d times, want 1", n)
	}
}

func TestConflictKeepsStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := trust.NewMemoryStore()
	alerter := &recordingAlerter{}
	v := tofu.NewVerifier(store, tofu.AcceptAll, alerter)

	if err := v.Verify(ctx, "bob", fp1); err != nil {
		t.Fatalf("first contact: %v", err)
	}
	err := v.Verify(ctx, "bob", fp2)
	if !errors.Is(err, errs.ErrTrustConflict) {
		t.Fatalf("want ErrTrustConflict, got %v", err)
	}
	var conflict *errs.TrustConflictError
	if !errors.As(err, &conflict) || conflict.Stored != fp1 || conflict.Observed != fp2 {
		t.Fatalf("unexpected conflict detail %+v", conflict)
	}

	rec, _ := store.Get(ctx, "bob")
	if rec.Fingerprint != fp1 {
		t.Fatalf("stored fingerprint changed to %s", rec.Fingerprint)
	}
	if len(alerter.calls) != 1 {
		t.Fatalf("alerter called %d times, want 1", len(alerter.calls))
	}

	state, _, err := v.State(ctx, "bob", fp2)
	if err != nil || state != tofu.Conflicted {
		t.Fatalf("State = %v, %v", state, err)
	}
}

func TestRejectLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	store := trust.NewMemoryStore()
	v := tofu.NewVerifier(store, tofu.RejectAll, nil)

	if err := v.Verify(ctx, "bob", fp1); !errors.Is(err, errs.ErrTrustRejected) {
		t.Fatalf("want ErrTrustRejected, got %v", err)
	}
	rec, err := store.Get(ctx, "bob")
	if err != nil || rec != nil {
		t.Fatalf("record stored after rejection: %+v, %v", rec, err)
	}
	state, _, _ := v.State(ctx, "bob", fp1)
	if state != tofu.Unknown {
		t.Fatalf("state = %v, want unknown", state)
	}
}

func TestConcurrentFirstContactPromptsOnce(t *testing.T) {
	ctx := context.Background()
	store := trust.NewMemoryStore()
	policy := &countingPolicy{decision: tofu.Accept, delay: 20 * time.Millisecond}
	v := tofu.NewVerifier(store, policy, nil)

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- v.Verify(ctx, "bob", fp1)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
	}
	if n := policy.calls.Load(); n != 1 {
		t.Fatalf("policy called %d times, want 1", n)
	}
}

func TestPolicyErrorPropagates(t *testing.T) {
	boom := errors.New("prompt closed")
	v := tofu.NewVerifier(trust.NewMemoryStore(), tofu.PolicyFunc(func(context.Context, string, string) (tofu.Decision, error) {
		return tofu.Reject, boom
	}), nil)
	if err := v.Verify(context.Background(), "bob", fp1); !errors.Is(err, boom) {
		t.Fatalf("want wrapped policy error, got %v", err)
	}
}

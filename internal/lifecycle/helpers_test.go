package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"gm-dapp/internal/lifecycle"
	"gm-dapp/internal/notifyclient/memory"
	"gm-dapp/internal/wallet"
)

// testSeed backs every test signer, so address is the account they own.
var testSeed = bytes.Repeat([]byte{0x42}, 32)

var address = mustWallet(testSeed).Address()

func mustWallet(seed []byte) *wallet.Wallet {
	w, err := wallet.FromSeed(seed)
	if err != nil {
		panic(err)
	}
	return w
}

var errDeclined = errors.New("user declined")

// testSigner wraps a wallet and can decline or block signature requests.
type testSigner struct {
	w *wallet.Wallet

	mu      sync.Mutex
	decline bool
	gate    chan struct{}
	calls   int
	entered chan struct{}
}

func newSigner(t *testing.T) *testSigner {
	t.Helper()
	w, err := wallet.FromSeed(testSeed)
	require.NoError(t, err)
	return &testSigner{w: w}
}

func (s *testSigner) PublicKey() string { return s.w.PublicKey() }

func (s *testSigner) Sign(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	s.calls++
	decline, gate, entered := s.decline, s.gate, s.entered
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if decline {
		return "", errDeclined
	}
	return s.w.Sign(ctx, message)
}

func (s *testSigner) setDecline(v bool) {
	s.mu.Lock()
	s.decline = v
	s.mu.Unlock()
}

// block makes Sign report entry on the returned channel and wait for release.
func (s *testSigner) block() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.gate, s.entered = gate, ch
	s.mu.Unlock()
	return ch, func() { close(gate) }
}

func (s *testSigner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	svc    *memory.Service
	signer *testSigner
	sess   *lifecycle.Session
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	svc := memory.New(opts...)
	signer := newSigner(t)
	sess, err := lifecycle.NewSession(lifecycle.Deps{Client: svc, Backend: svc, Signer: signer})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return &fixture{svc: svc, signer: signer, sess: sess}
}

func (f *fixture) connect(t *testing.T) lifecycle.Identity {
	t.Helper()
	id, err := f.sess.Connect(context.Background(), address)
	require.NoError(t, err)
	return id
}

func (f *fixture) subscribe(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sess.Subscribe(context.Background()))
	require.True(t, f.sess.SubscriptionState().Subscribed)
}

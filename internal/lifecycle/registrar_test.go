package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/lifecycle"
	"gm-dapp/internal/notifyclient/memory"
)

func TestRegister_QualifiesAddress(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)

	assert.Equal(t, "eip155:1:"+address, id.Account)
	assert.Equal(t, lifecycle.StatusRegistered, id.Status)
	assert.NotEmpty(t, id.IdentityKey)
	assert.NotEmpty(t, id.Token)
}

func TestRegister_IdempotentForSameAddress(t *testing.T) {
	f := newFixture(t)
	first := f.connect(t)

	reg := lifecycle.NewRegistrar(f.svc, f.signer, "")
	a, err := reg.Register(context.Background(), address)
	require.NoError(t, err)
	b, err := reg.Register(context.Background(), "eip155:1:"+address)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, first.IdentityKey, a.IdentityKey)
	assert.Equal(t, 2, f.svc.Calls(memory.OpRegister))
}

func TestRegister_SameKeyAfterReconnect(t *testing.T) {
	f := newFixture(t)
	first := f.connect(t)
	f.sess.Disconnect()
	assert.Equal(t, lifecycle.StatusUnregistered, f.sess.Identity().Status)

	second := f.connect(t)
	assert.Equal(t, first.IdentityKey, second.IdentityKey)
}

func TestRegister_AddressNotOwnedBySigner(t *testing.T) {
	f := newFixture(t)
	_, err := f.sess.Connect(context.Background(), "0x00000000000000000000000000000000000000dd")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidRequest)
	assert.Equal(t, lifecycle.StatusUnregistered, f.sess.Identity().Status)

	id := f.connect(t)
	assert.Equal(t, "eip155:1:"+address, id.Account)
}

func TestRegister_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	_, err := f.sess.Connect(context.Background(), "not an address")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidRequest)
	assert.Zero(t, f.svc.Calls(memory.OpChallenge))
}

func TestRegister_UserRejectedAllowsRetryWithSameChallenge(t *testing.T) {
	f := newFixture(t)
	f.signer.setDecline(true)

	_, err := f.sess.Connect(context.Background(), address)
	require.ErrorIs(t, err, lifecycle.ErrUserRejected)
	assert.Equal(t, lifecycle.StatusUnregistered, f.sess.Identity().Status)

	f.signer.setDecline(false)
	id := f.connect(t)
	assert.True(t, id.Registered())
	assert.Equal(t, 1, f.svc.Calls(memory.OpChallenge))
	assert.Equal(t, 2, f.signer.Calls())
}

func TestRegister_TransportFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.FailNext(memory.OpChallenge, errors.New("connection refused"))

	_, err := f.sess.Connect(context.Background(), address)
	require.ErrorIs(t, err, lifecycle.ErrTransport)
	assert.Zero(t, f.signer.Calls())

	f.connect(t)
}

func TestRegister_NoStateChangeBeforeSigning(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.svc.SetGate(memory.OpChallenge, gate)

	done := make(chan error, 1)
	go func() {
		_, err := f.sess.Connect(context.Background(), address)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.svc.Calls(memory.OpChallenge) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, lifecycle.StatusUnregistered, f.sess.Identity().Status)
	assert.Empty(t, f.sess.Identity().Account)

	entered, release := f.signer.block()
	close(gate)
	<-entered
	assert.Equal(t, lifecycle.StatusRegistering, f.sess.Identity().Status)

	_, err := f.sess.Connect(context.Background(), address)
	assert.ErrorIs(t, err, lifecycle.ErrAlreadyInProgress)

	release()
	require.NoError(t, <-done)
	assert.True(t, f.sess.Identity().Registered())
}

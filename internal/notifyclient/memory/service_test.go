package memory_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
	"gm-dapp/internal/notifyclient/memory"
)

var (
	ownerKey = ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x11}, ed25519.SeedSize))
	ownerPub = auth.EncodePublicKey(ownerKey.Public().(ed25519.PublicKey))
	account  = model.DefaultChain + ":" + auth.Address(ownerKey.Public().(ed25519.PublicKey))
)

func register(t *testing.T, svc *memory.Service) notifyclient.Identity {
	t.Helper()
	ctx := context.Background()
	ch, err := svc.RequestChallenge(ctx, account)
	require.NoError(t, err)
	id, err := svc.SubmitIdentity(ctx, account, ownerPub, auth.Sign(ownerKey, ch.Message))
	require.NoError(t, err)
	return id
}

func TestSubmitIdentityRejectsBadSignature(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()

	_, other, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	ch, err := svc.RequestChallenge(ctx, account)
	require.NoError(t, err)
	_, err = svc.SubmitIdentity(ctx, account, ownerPub, auth.Sign(other, ch.Message))
	assert.ErrorIs(t, err, notifyclient.ErrInvalidSignature)
}

func TestSubmitIdentityRejectsKeyNotOwningAccount(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()
	owner := register(t, svc)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ch, err := svc.RequestChallenge(ctx, account)
	require.NoError(t, err)
	_, err = svc.SubmitIdentity(ctx, account, auth.EncodePublicKey(pub), auth.Sign(priv, ch.Message))
	assert.ErrorIs(t, err, notifyclient.ErrInvalidSignature)

	again := register(t, svc)
	assert.Equal(t, owner.IdentityKey, again.IdentityKey)
	assert.Equal(t, ownerPub, svc.Export().Identities[account].PublicKey)
}

func TestSubmitIdentityNeedsLiveChallenge(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc := memory.New(memory.WithNow(func() time.Time { return now }), memory.WithChallengeTTL(time.Minute))
	ctx := context.Background()

	_, err := svc.SubmitIdentity(ctx, account, ownerPub, "sig")
	assert.ErrorIs(t, err, notifyclient.ErrChallengeExpired)

	ch, err := svc.RequestChallenge(ctx, account)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = svc.SubmitIdentity(ctx, account, ownerPub, auth.Sign(ownerKey, ch.Message))
	assert.ErrorIs(t, err, notifyclient.ErrChallengeExpired)
}

func TestSubmitIdentityKeepsKeyForSamePublicKey(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()

	var keys []string
	for i := 0; i < 2; i++ {
		ch, err := svc.RequestChallenge(ctx, account)
		require.NoError(t, err)
		id, err := svc.SubmitIdentity(ctx, account, ownerPub, auth.Sign(ownerKey, ch.Message))
		require.NoError(t, err)
		keys = append(keys, id.IdentityKey)
	}
	assert.Equal(t, keys[0], keys[1])
}

func TestAccountOperationsRequireIdentity(t *testing.T) {
	svc := memory.New()
	_, err := svc.Subscribe(context.Background(), account)
	assert.ErrorIs(t, err, notifyclient.ErrNotRegistered)
}

func TestSubscribeLifecycleFiresWebhook(t *testing.T) {
	var events []model.WebhookEvent
	svc := memory.New(memory.WithWebhook(func(_ context.Context, ev model.WebhookEvent) error {
		events = append(events, ev)
		return nil
	}))
	register(t, svc)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, account)
	require.NoError(t, err)
	assert.True(t, sub.Subscribed)
	assert.Len(t, sub.Scopes, 2)

	_, err = svc.Subscribe(ctx, account)
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, account))
	assert.ErrorIs(t, svc.Unsubscribe(ctx, account), notifyclient.ErrNoSubscription)

	require.Len(t, events, 2)
	assert.Equal(t, model.EventSubscribed, events[0].Event)
	assert.Equal(t, model.EventUnsubscribed, events[1].Event)
	assert.Equal(t, account, events[1].Account)

	got, err := svc.Subscription(ctx, account)
	require.NoError(t, err)
	assert.False(t, got.Subscribed)
}

func TestUpdateScopesReplacesEnabledSet(t *testing.T) {
	svc := memory.New()
	register(t, svc)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, account)
	require.NoError(t, err)

	sub, err := svc.UpdateScopes(ctx, account, []string{model.TypeHourly})
	require.NoError(t, err)
	assert.True(t, sub.Scopes[model.TypeHourly].Enabled)
	assert.False(t, sub.Scopes[model.TypeManual].Enabled)

	_, err = svc.UpdateScopes(ctx, account, []string{"nope"})
	assert.ErrorIs(t, err, notifyclient.ErrUnknownScope)

	sub, err = svc.Subscription(ctx, account)
	require.NoError(t, err)
	assert.False(t, sub.Scopes[model.TypeManual].Enabled)
}

func TestNotifyRespectsSubscriptionAndScopes(t *testing.T) {
	svc := memory.New()
	register(t, svc)
	ctx := context.Background()
	req := model.TestNotification(account)

	out, err := svc.Notify(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, notifyclient.SendOutcome{Message: "NotSubscribed"}, out)

	_, err = svc.Subscribe(ctx, account)
	require.NoError(t, err)
	out, err = svc.Notify(ctx, req)
	require.NoError(t, err)
	assert.True(t, out.Success)

	_, err = svc.UpdateScopes(ctx, account, []string{model.TypeHourly})
	require.NoError(t, err)
	out, err = svc.Notify(ctx, req)
	require.NoError(t, err)
	assert.False(t, out.Success)

	page, err := svc.Messages(ctx, account, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "gm!", page.Messages[0].Title)
}

func TestMessagesPagination(t *testing.T) {
	svc := memory.New()
	register(t, svc)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, account)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, ok := svc.Deliver(account, model.Notification{Title: "t", Body: "b", Type: model.TypeManual})
		require.True(t, ok)
	}

	first, err := svc.Messages(ctx, account, 5, 0)
	require.NoError(t, err)
	require.Len(t, first.Messages, 5)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(7), first.Messages[0].ID)

	second, err := svc.Messages(ctx, account, 5, first.Messages[4].ID)
	require.NoError(t, err)
	require.Len(t, second.Messages, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, int64(1), second.Messages[1].ID)

	require.NoError(t, svc.DeleteMessage(ctx, account, 7))
	assert.ErrorIs(t, svc.DeleteMessage(ctx, account, 7), notifyclient.ErrMessageNotFound)

	require.NoError(t, svc.MarkRead(ctx, account, []int64{6}))
	page, err := svc.Messages(ctx, account, 1, 0)
	require.NoError(t, err)
	assert.True(t, page.Messages[0].Read)
}

func TestFailNextAndGate(t *testing.T) {
	svc := memory.New()
	register(t, svc)
	boom := errors.New("boom")
	svc.FailNext(memory.OpSubscribe, boom)

	_, err := svc.Subscribe(context.Background(), account)
	assert.ErrorIs(t, err, boom)
	_, err = svc.Subscribe(context.Background(), account)
	assert.NoError(t, err)
	assert.Equal(t, 2, svc.Calls(memory.OpSubscribe))

	gate := make(chan struct{})
	svc.SetGate(memory.OpUnsubscribe, gate)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Unsubscribe(ctx, account), context.DeadlineExceeded)
}

func TestHandlerRequiresMatchingToken(t *testing.T) {
	svc := memory.New()
	verify := func(token string) (string, string, error) {
		if token != "good" {
			return "", "", errors.New("bad token")
		}
		return account, "key", nil
	}
	srv := httptest.NewServer(svc.Handler(verify))
	defer srv.Close()

	do := func(method, path, token, body string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/p/subscriptions/"+account, "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/p/subscriptions/"+account, "bad", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/p/subscriptions/eip155:1:0x2222222222222222222222222222222222222222", "good", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/p/subscriptions/"+account, "good", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/p/subscriptions", "good", `{"account":"`+account+`"}`).StatusCode)
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/p/subscriptions/"+account, "good", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/p/messages/"+account+"/9", "good", "").StatusCode)
}

func TestExportImport(t *testing.T) {
	svc := memory.New()
	id := register(t, svc)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, account)
	require.NoError(t, err)
	_, err = svc.UpdateScopes(ctx, account, []string{model.TypeManual})
	require.NoError(t, err)
	_, ok := svc.Deliver(account, model.Notification{Title: "gm", Body: "b", Type: model.TypeManual})
	require.True(t, ok)

	restored := memory.New()
	restored.Import(svc.Export())

	sub, err := restored.Subscription(ctx, account)
	require.NoError(t, err)
	assert.True(t, sub.Subscribed)
	assert.False(t, sub.Scopes[model.TypeHourly].Enabled)

	msg, ok := restored.Deliver(account, model.Notification{Title: "gm", Body: "b", Type: model.TypeManual})
	require.True(t, ok)
	assert.Equal(t, int64(2), msg.ID)
	assert.Equal(t, id.IdentityKey, restored.Export().Identities[account].IdentityKey)
}

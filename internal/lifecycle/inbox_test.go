package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/lifecycle"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
	"gm-dapp/internal/notifyclient/memory"
)

// arrival returns its messages in the order they were seeded.
type arrival struct {
	*memory.Service
	msgs []model.NotificationMessage
}

func (a *arrival) Messages(context.Context, string, int, int64) (notifyclient.MessagePage, error) {
	return notifyclient.MessagePage{Messages: a.msgs}, nil
}

func ids(msgs []model.NotificationMessage) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func fill(t *testing.T, f *fixture, account string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, ok := f.svc.Deliver(account, model.Notification{Title: "gm", Body: "gm", Type: model.TypeHourly})
		require.True(t, ok)
	}
}

func TestPager_NewestFirstRegardlessOfArrival(t *testing.T) {
	svc := memory.New()
	client := &arrival{Service: svc}
	for _, id := range []int64{5, 3, 1, 4, 2} {
		client.msgs = append(client.msgs, model.NotificationMessage{ID: id, Title: "gm"})
	}
	signer := newSigner(t)
	reg := lifecycle.NewRegistrar(client, signer, "")
	_, err := reg.Register(context.Background(), address)
	require.NoError(t, err)

	pager := lifecycle.NewInbox(client, reg).Pager(0)
	page, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, ids(page))
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, ids(pager.Items()))
	assert.False(t, pager.HasMore())
}

func TestPager_ForwardPagination(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)
	f.subscribe(t)
	fill(t, f, id.Account, 12)

	pager := f.sess.Pager(0)
	assert.True(t, pager.HasMore())

	var pages [][]int64
	for pager.HasMore() {
		page, err := pager.Next(context.Background())
		require.NoError(t, err)
		pages = append(pages, ids(page))
	}
	assert.Equal(t, [][]int64{{12, 11, 10, 9, 8}, {7, 6, 5, 4, 3}, {2, 1}}, pages)
	assert.Len(t, pager.Items(), 12)

	page, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPager_StaleAfterIdentityChange(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)
	f.subscribe(t)
	fill(t, f, id.Account, 7)

	pager := f.sess.Pager(0)
	_, err := pager.Next(context.Background())
	require.NoError(t, err)

	_, err = f.sess.Reinit(context.Background())
	require.NoError(t, err)
	_, err = pager.Next(context.Background())
	require.NoError(t, err, "Reinit resets tracked pagers")

	other := f.sess.Pager(0)
	_, err = other.Next(context.Background())
	require.NoError(t, err)

	reg := lifecycle.NewRegistrar(f.svc, f.signer, "")
	_, err = reg.Register(context.Background(), address)
	require.NoError(t, err)
	untracked := lifecycle.NewInbox(f.svc, reg).Pager(5)
	_, err = untracked.Next(context.Background())
	require.NoError(t, err)
	reg.Reset()
	_, err = reg.Register(context.Background(), address)
	require.NoError(t, err)

	_, err = untracked.Next(context.Background())
	assert.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
	untracked.Reset()
	page, err := untracked.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 6, 5, 4, 3}, ids(page))
}

func TestInbox_DeleteIsOptimistic(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)
	f.subscribe(t)
	fill(t, f, id.Account, 3)

	pager := f.sess.Pager(0)
	_, err := pager.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.sess.DeleteMessage(context.Background(), 2))
	assert.Equal(t, []int64{3, 1}, ids(pager.Items()))

	page, err := f.svc.Messages(context.Background(), id.Account, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids(page.Messages))
}

func TestInbox_DeleteReachesPagersAfterReinit(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)
	f.subscribe(t)
	fill(t, f, id.Account, 3)
	ctx := context.Background()

	pager := f.sess.Pager(0)
	_, err := pager.Next(ctx)
	require.NoError(t, err)

	_, err = f.sess.Reinit(ctx)
	require.NoError(t, err)
	assert.Empty(t, pager.Items())
	_, err = pager.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 1}, ids(pager.Items()))

	require.NoError(t, f.sess.DeleteMessage(ctx, 2))
	assert.Equal(t, []int64{3, 1}, ids(pager.Items()))

	f.svc.FailNext(memory.OpDelete, errors.New("relay unreachable"))
	assert.ErrorIs(t, f.sess.DeleteMessage(ctx, 3), lifecycle.ErrTransport)
	assert.Equal(t, []int64{3, 1}, ids(pager.Items()))
}

func TestInbox_DeleteFailureReloads(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)
	f.subscribe(t)
	fill(t, f, id.Account, 8)

	pager := f.sess.Pager(0)
	for i := 0; i < 2; i++ {
		_, err := pager.Next(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, pager.Items(), 8)

	f.svc.FailNext(memory.OpDelete, errors.New("relay unreachable"))
	err := f.sess.DeleteMessage(context.Background(), 4)
	assert.ErrorIs(t, err, lifecycle.ErrTransport)
	assert.Equal(t, []int64{8, 7, 6, 5, 4, 3, 2, 1}, ids(pager.Items()))
}

func TestInbox_MarkRead(t *testing.T) {
	f := newFixture(t)
	id := f.connect(t)
	f.subscribe(t)
	fill(t, f, id.Account, 2)

	pager := f.sess.Pager(0)
	_, err := pager.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.sess.MarkRead(context.Background(), []int64{1}))
	items := pager.Items()
	assert.False(t, items[0].Read)
	assert.True(t, items[1].Read)
}

func TestInbox_RequiresRegistration(t *testing.T) {
	f := newFixture(t)
	_, err := f.sess.Pager(0).Next(context.Background())
	assert.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
	assert.ErrorIs(t, f.sess.DeleteMessage(context.Background(), 1), lifecycle.ErrPreconditionFailed)
}

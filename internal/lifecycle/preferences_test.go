package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/lifecycle"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient/memory"
)

func TestUpdateScopes_FullReplace(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.subscribe(t)
	ctx := context.Background()

	require.True(t, f.sess.UpdateScopes(ctx, []string{model.TypeHourly}))
	scopes, err := f.sess.Scopes(ctx)
	require.NoError(t, err)
	assert.True(t, scopes[model.TypeHourly].Enabled)
	assert.False(t, scopes[model.TypeManual].Enabled)

	require.True(t, f.sess.UpdateScopes(ctx, []string{model.TypeManual}))
	scopes, err = f.sess.Scopes(ctx)
	require.NoError(t, err)
	assert.False(t, scopes[model.TypeHourly].Enabled)
	assert.True(t, scopes[model.TypeManual].Enabled)
	assert.Equal(t, "Hourly gm", scopes[model.TypeHourly].Description)
}

func TestUpdateScopes_UnknownKeyRejectedLocally(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.subscribe(t)

	assert.False(t, f.sess.UpdateScopes(context.Background(), []string{model.TypeHourly, "gm_weekly"}))
	assert.Zero(t, f.svc.Calls(memory.OpUpdateScopes))

	scopes, err := f.sess.Scopes(context.Background())
	require.NoError(t, err)
	assert.True(t, scopes[model.TypeHourly].Enabled)
	assert.True(t, scopes[model.TypeManual].Enabled)
}

func TestUpdateScopes_FailuresReportFalse(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.sess.UpdateScopes(context.Background(), nil))

	f.connect(t)
	assert.False(t, f.sess.UpdateScopes(context.Background(), nil))

	f.subscribe(t)
	f.svc.FailNext(memory.OpUpdateScopes, errors.New("timeout"))
	assert.False(t, f.sess.UpdateScopes(context.Background(), []string{model.TypeManual}))

	scopes, err := f.sess.Scopes(context.Background())
	require.NoError(t, err)
	assert.True(t, scopes[model.TypeHourly].Enabled)
}

func TestScopes_CustomScopeSet(t *testing.T) {
	f := newFixture(t, memory.WithScopes(map[string]model.Scope{
		"promos": {Enabled: false, Description: "Promotions"},
	}))
	f.connect(t)
	f.subscribe(t)

	require.True(t, f.sess.UpdateScopes(context.Background(), []string{"promos"}))
	scopes, err := f.sess.Scopes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Scope{"promos": {Enabled: true, Description: "Promotions"}}, scopes)
}

func TestScopes_RequiresSubscription(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	_, err := f.sess.Scopes(context.Background())
	assert.ErrorIs(t, err, lifecycle.ErrPreconditionFailed)
}

func TestUpdateScopes_ResubscribeSeesNewScopeSet(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.subscribe(t)
	ctx := context.Background()

	scopes, err := f.sess.Scopes(ctx)
	require.NoError(t, err)
	require.Contains(t, scopes, model.TypeHourly)

	require.NoError(t, f.sess.Unsubscribe(ctx))
	f.svc.SetScopes(map[string]model.Scope{"promos": {Description: "Promotions"}})
	f.subscribe(t)

	require.True(t, f.sess.UpdateScopes(ctx, []string{"promos"}))
	scopes, err = f.sess.Scopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Scope{"promos": {Enabled: true, Description: "Promotions"}}, scopes)
	assert.False(t, f.sess.UpdateScopes(ctx, []string{model.TypeHourly}))
}

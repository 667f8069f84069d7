package adminapi

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AccountLifecycle(t *testing.T) {
	f := newAPI(t)
	c := NewClient(f.srv.URL+"/", f.token, f.srv.Client())
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "bob", "bob-pw", decimal.RequireFromString("12.5")))
	require.ErrorIs(t, c.Create(ctx, "bob", "bob-pw", decimal.Zero), common.ErrAccountExists)

	require.NoError(t, c.SetBalance(ctx, "bob", decimal.NewFromInt(40)))
	require.NoError(t, c.Lock(ctx, "bob", "chargeback"))

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Name)
	assert.Equal(t, "bob", list[1].Name)
	assert.Equal(t, "40.00", list[1].Balance)
	assert.True(t, list[1].Locked)
	assert.Equal(t, "chargeback", list[1].LockReason)

	require.NoError(t, c.Unlock(ctx, "bob"))
	require.NoError(t, c.ResetCredential(ctx, "bob", "new-pw"))
	require.NoError(t, c.Delete(ctx, "bob"))
	require.ErrorIs(t, c.Delete(ctx, "bob"), common.ErrAccountNotFound)
}

func TestClient_Relays(t *testing.T) {
	f := newAPI(t)
	relays, err := NewClient(f.srv.URL, f.token, nil).Relays(context.Background())
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, Relay{Address: "relay-a", Name: "north", LastSeen: epoch.UnixMilli(), Endpoints: map[string]int{"client": 2}}, relays[0])
}

func TestClient_Errors(t *testing.T) {
	f := newAPI(t)
	ctx := context.Background()

	_, err := NewClient(f.srv.URL, "not-a-token", nil).List(ctx)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	err = NewClient(f.srv.URL, f.token, nil).ResetCredential(ctx, "alice", "")
	require.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = NewClient(f.srv.URL+"/nowhere", f.token, nil).List(ctx)
	require.ErrorContains(t, err, "unexpected status 404")

	_, err = NewClient("http://127.0.0.1:1", f.token, nil).List(ctx)
	require.Error(t, err)
}

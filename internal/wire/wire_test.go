package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/codec"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, m map[string]any) []byte {
	t.Helper()
	raw, err := codec.Encode(m)
	require.NoError(t, err)
	return raw
}

func TestDecodeRequest_Variants(t *testing.T) {
	tests := []struct {
		name  string
		frame map[string]any
		check func(t *testing.T, req Request)
	}{
		{
			name:  "login",
			frame: map[string]any{"command": "login", "username": "alice", "password": "pw", "request_id": "r1"},
			check: func(t *testing.T, req Request) {
				r, ok := req.(*LoginRequest)
				require.True(t, ok)
				assert.Equal(t, "alice", r.Username)
				assert.Equal(t, "pw", r.Password)
			},
		},
		{
			name:  "transfer with string amount",
			frame: map[string]any{"command": "transfer", "username": "alice", "password": "pw", "recipient": "bob", "amount": "25.50"},
			check: func(t *testing.T, req Request) {
				r := req.(*TransferRequest)
				assert.True(t, r.Amount.Equal(decimal.RequireFromString("25.5")))
			},
		},
		{
			name:  "transfer with integer amount",
			frame: map[string]any{"command": "transfer", "username": "alice", "password": "pw", "recipient": "bob", "amount": int64(25)},
			check: func(t *testing.T, req Request) {
				assert.True(t, req.(*TransferRequest).Amount.Equal(decimal.NewFromInt(25)))
			},
		},
		{
			name:  "list accounts needs nothing",
			frame: map[string]any{"command": "list_accounts"},
			check: func(t *testing.T, req Request) {
				_, ok := req.(*ListAccountsRequest)
				assert.True(t, ok)
			},
		},
		{
			name:  "admin create defaults balance",
			frame: map[string]any{"command": "admin_create", "admin_token": "t", "name": "carol", "password": "pw"},
			check: func(t *testing.T, req Request) {
				assert.True(t, req.(*AdminCreateRequest).Balance.IsZero())
			},
		},
		{
			name:  "find nearby",
			frame: map[string]any{"command": "find_nearby", "x": 1.5, "y": 2.5, "z": 0.5, "dimension": "overworld", "radius": 10.0, "limit": int64(3)},
			check: func(t *testing.T, req Request) {
				r := req.(*FindNearbyRequest)
				assert.Equal(t, 10.0, r.Radius)
				assert.Equal(t, 3, r.Limit)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeRequest(encode(t, tt.frame))
			require.NoError(t, err)
			require.NotNil(t, env.Request)
			assert.Equal(t, tt.frame["command"], env.Request.Command())
			tt.check(t, env.Request)
		})
	}
}

func TestDecodeRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		wantCode common.Code
		dropped  bool
	}{
		{"garbage", []byte{0xff, 0x00}, "", true},
		{"not a map", mustEncode(t, []any{"login"}), "", true},
		{"command not a string", mustEncode(t, map[string]any{"command": int64(1)}), "", true},
		{"unknown command", mustEncode(t, map[string]any{"command": "mint_money", "request_id": "r"}), common.CodeUnknownCommand, false},
		{"missing password", mustEncode(t, map[string]any{"command": "login", "username": "alice"}), common.CodeInvalidRequest, false},
		{"wrong field type", mustEncode(t, map[string]any{"command": "login", "username": int64(5), "password": "x"}), common.CodeInvalidRequest, false},
		{"nan amount", mustEncode(t, map[string]any{"command": "transfer", "username": "a", "password": "p", "recipient": "b", "amount": "NaN"}), common.CodeInvalidAmount, false},
		{"too precise", mustEncode(t, map[string]any{"command": "transfer", "username": "a", "password": "p", "recipient": "b", "amount": "1.001"}), common.CodeInvalidAmount, false},
		{"missing amount", mustEncode(t, map[string]any{"command": "transfer", "username": "a", "password": "p", "recipient": "b"}), common.CodeInvalidRequest, false},
		{"zero radius", mustEncode(t, map[string]any{"command": "find_nearby", "x": 0.5, "y": 0.5, "z": 0.5, "radius": 0.0}), common.CodeInvalidRequest, false},
		{"response is not a request", mustEncode(t, map[string]any{"type": "response", "command": "login"}), common.CodeInvalidRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeRequest(tt.raw)
			require.Error(t, err)
			if tt.dropped {
				assert.True(t, IsDropped(err))
				assert.Nil(t, env)
				return
			}
			assert.False(t, IsDropped(err))
			require.NotNil(t, env)
			assert.Nil(t, env.Request)
			assert.Equal(t, tt.wantCode, common.CodeOf(err))
		})
	}
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := codec.Encode(v)
	require.NoError(t, err)
	return raw
}

func TestEncodeRequest_RoundTrip(t *testing.T) {
	h := Header{RequestID: "req-1", Origin: &Origin{Address: "ep-7", Channel: ChannelRPC}}
	req := &TransferRequest{Username: "alice", Password: "pw", Recipient: "bob", AmountRaw: "25.50"}

	raw, err := EncodeRequest(h, req)
	require.NoError(t, err)

	env, err := DecodeRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "transfer", env.Command)
	require.NotNil(t, env.Origin)
	assert.Equal(t, Origin{Address: "ep-7", Channel: ChannelRPC}, *env.Origin)
	assert.Equal(t, "bob", env.Request.(*TransferRequest).Recipient)
}

func TestRewrite_PreservesUnknownFields(t *testing.T) {
	raw := encode(t, map[string]any{
		"command":    "future_command",
		"request_id": "r9",
		"payload":    []any{int64(1), int64(2)},
		"origin":     map[string]any{"address": "spoofed", "channel": int64(1)},
	})

	out, err := Rewrite(raw, Origin{Address: "ep-1", Channel: 4000}, "relay-a")
	require.NoError(t, err)

	v, err := codec.Decode(out)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "future_command", m["command"])
	assert.Equal(t, []any{int64(1), int64(2)}, m["payload"])
	assert.Equal(t, "relay-a", m["via"])
	assert.Equal(t, map[string]any{"address": "ep-1", "channel": int64(4000)}, m["origin"])
}

func TestRewrite_RejectsNonMap(t *testing.T) {
	_, err := Rewrite(mustEncode(t, "hello"), Origin{}, "r")
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrMalformed))
}

func TestResponse_FailAndErr(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	h := Header{Command: "login", RequestID: "r1", Via: "relay-a", Origin: &Origin{Address: "ep", Channel: 4000}}

	resp := NewResponse(h)
	resp.Balance = "10.00"
	resp.Fail(common.Locked(common.CodeAccountLocked, "chargeback", at))

	raw, err := resp.Encode()
	require.NoError(t, err)
	got, err := DecodeResponse(raw)
	require.NoError(t, err)

	assert.False(t, got.Success)
	assert.Empty(t, got.Balance)
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, "relay-a", got.Via)

	e := got.Err()
	require.ErrorIs(t, e, common.ErrAccountLocked)
	var ce *common.Error
	require.ErrorAs(t, e, &ce)
	assert.Equal(t, "chargeback", ce.LockReason)
	assert.Equal(t, at, ce.LockedAt)
}

func TestResponse_FailHidesInternalText(t *testing.T) {
	resp := NewResponse(Header{Command: "balance"}).Fail(errors.New("disk on fire at /var/lib"))
	assert.Equal(t, common.CodeInternal, resp.Error)
	assert.NotContains(t, resp.Message, "disk")
}

func TestResponse_Data(t *testing.T) {
	resp := NewResponse(Header{Command: "list_all"})
	require.NoError(t, resp.SetData(map[string]any{"count": int64(2)}))

	raw, err := resp.Encode()
	require.NoError(t, err)
	got, err := DecodeResponse(raw)
	require.NoError(t, err)

	var data struct {
		Count int `cbor:"count"`
	}
	require.NoError(t, got.DecodeData(&data))
	assert.Equal(t, 2, data.Count)
	assert.Nil(t, got.Err())
}

func TestResponse_EmptyListingsKeepTheirFields(t *testing.T) {
	tests := []struct {
		command string
		want    map[string]any
	}{
		{CmdListAccounts, map[string]any{"accounts": []any{}, "total": int64(0)}},
		{CmdAdminList, map[string]any{"details": []any{}, "total": int64(0)}},
		{CmdListAll, map[string]any{"total": int64(0)}},
		{CmdFindNearby, map[string]any{"total": int64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			raw, err := NewResponse(Header{Command: tt.command, RequestID: "x"}).Encode()
			require.NoError(t, err)

			v, err := codec.Decode(raw)
			require.NoError(t, err)
			m := v.(map[string]any)
			for k, want := range tt.want {
				assert.Equal(t, want, m[k], k)
			}
			assert.Equal(t, true, m["success"])

			got, err := DecodeResponse(raw)
			require.NoError(t, err)
			assert.Equal(t, 0, got.Total)
		})
	}

	raw, err := ErrorResponse(Header{Command: CmdListAccounts}, common.ErrInternal).Encode()
	require.NoError(t, err)
	v, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.NotContains(t, v.(map[string]any), "accounts")
	assert.NotContains(t, v.(map[string]any), "total")
}

func TestResponse_ListAccountsRoundTrip(t *testing.T) {
	resp := NewResponse(Header{Command: CmdListAccounts})
	resp.Accounts = []AccountSummary{{Name: "alice", Online: true}, {Name: "bob"}}
	resp.Total = 2

	raw, err := resp.Encode()
	require.NoError(t, err)
	got, err := DecodeResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, resp.Accounts, got.Accounts)
	assert.Equal(t, 2, got.Total)
}

func TestDecodeResponse_RejectsOtherFrames(t *testing.T) {
	_, err := DecodeResponse(mustEncode(t, map[string]any{"type": "relay_ack"}))
	require.Error(t, err)
}

func TestControl_RoundTripAndAudience(t *testing.T) {
	c := &Control{Type: TypeNotify, Event: EventAccountLocked, Account: "bob", Audience: []string{KindController}}
	raw, err := c.Encode()
	require.NoError(t, err)

	got, err := DecodeControl(raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.True(t, got.Addressed(KindController))
	assert.False(t, got.Addressed(KindClient))
	assert.True(t, (&Control{}).Addressed(KindClient))
}

func TestRegisterTypeAndKind(t *testing.T) {
	for _, kind := range []string{KindClient, KindController, KindManager} {
		typ, err := RegisterType(kind)
		require.NoError(t, err)
		back, ok := KindOf(typ)
		require.True(t, ok)
		assert.Equal(t, kind, back)
	}
	_, err := RegisterType("toaster")
	require.Error(t, err)
	_, ok := KindOf(TypeRelayAck)
	assert.False(t, ok)
}

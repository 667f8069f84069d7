package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/dmitrijs2005/linkledger/internal/codec"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/shopspring/decimal"
)

// Commands.
const (
	CmdLogin                = "login"
	CmdLogout               = "logout"
	CmdBalance              = "balance"
	CmdTransfer             = "transfer"
	CmdListAccounts         = "list_accounts"
	CmdAdminCreate          = "admin_create"
	CmdAdminDelete          = "admin_delete"
	CmdAdminSetBalance      = "admin_set_balance"
	CmdAdminLock            = "admin_lock"
	CmdAdminUnlock          = "admin_unlock"
	CmdAdminResetCredential = "admin_reset_credential"
	CmdAdminList            = "admin_list"
	CmdUpdateLocation       = "update_location"
	CmdGetLocation          = "get_location"
	CmdFindNearby           = "find_nearby"
	CmdListAll              = "list_all"
	CmdGetHistory           = "get_history"
	CmdRemoveEntity         = "remove_entity"
)

// Request is the closed set of RPC requests. Only types in this package
// implement it.
type Request interface {
	Command() string
	validate() error
}

type LoginRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

type LogoutRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

type BalanceRequest struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

// TransferRequest accepts the amount as a string or a number; Amount holds
// the parsed value after decoding.
type TransferRequest struct {
	Username  string          `cbor:"username"`
	Password  string          `cbor:"password"`
	Recipient string          `cbor:"recipient"`
	AmountRaw any             `cbor:"amount"`
	Amount    decimal.Decimal `cbor:"-"`
}

type ListAccountsRequest struct{}

type AdminCreateRequest struct {
	AdminToken string          `cbor:"admin_token"`
	Name       string          `cbor:"name"`
	Password   string          `cbor:"password"`
	BalanceRaw any             `cbor:"balance,omitempty"`
	Balance    decimal.Decimal `cbor:"-"`
}

type AdminDeleteRequest struct {
	AdminToken string `cbor:"admin_token"`
	Name       string `cbor:"name"`
}

type AdminSetBalanceRequest struct {
	AdminToken string          `cbor:"admin_token"`
	Name       string          `cbor:"name"`
	AmountRaw  any             `cbor:"amount"`
	Amount     decimal.Decimal `cbor:"-"`
}

type AdminLockRequest struct {
	AdminToken string `cbor:"admin_token"`
	Name       string `cbor:"name"`
	Reason     string `cbor:"reason,omitempty"`
}

type AdminUnlockRequest struct {
	AdminToken string `cbor:"admin_token"`
	Name       string `cbor:"name"`
}

type AdminResetCredentialRequest struct {
	AdminToken string `cbor:"admin_token"`
	Name       string `cbor:"name"`
	Password   string `cbor:"password"`
}

type AdminListRequest struct {
	AdminToken string `cbor:"admin_token"`
}

type UpdateLocationRequest struct {
	Entity    string  `cbor:"entity"`
	X         float64 `cbor:"x"`
	Y         float64 `cbor:"y"`
	Z         float64 `cbor:"z"`
	Dimension string  `cbor:"dimension,omitempty"`
}

type GetLocationRequest struct {
	Entity string `cbor:"entity"`
}

type FindNearbyRequest struct {
	X         float64 `cbor:"x"`
	Y         float64 `cbor:"y"`
	Z         float64 `cbor:"z"`
	Dimension string  `cbor:"dimension,omitempty"`
	Radius    float64 `cbor:"radius"`
	Limit     int     `cbor:"limit,omitempty"`
}

type ListAllRequest struct{}

type GetHistoryRequest struct {
	Entity string `cbor:"entity"`
	Limit  int    `cbor:"limit,omitempty"`
}

type RemoveEntityRequest struct {
	Entity string `cbor:"entity"`
}

func (*LoginRequest) Command() string                { return CmdLogin }
func (*LogoutRequest) Command() string               { return CmdLogout }
func (*BalanceRequest) Command() string              { return CmdBalance }
func (*TransferRequest) Command() string             { return CmdTransfer }
func (*ListAccountsRequest) Command() string         { return CmdListAccounts }
func (*AdminCreateRequest) Command() string          { return CmdAdminCreate }
func (*AdminDeleteRequest) Command() string          { return CmdAdminDelete }
func (*AdminSetBalanceRequest) Command() string      { return CmdAdminSetBalance }
func (*AdminLockRequest) Command() string            { return CmdAdminLock }
func (*AdminUnlockRequest) Command() string          { return CmdAdminUnlock }
func (*AdminResetCredentialRequest) Command() string { return CmdAdminResetCredential }
func (*AdminListRequest) Command() string            { return CmdAdminList }
func (*UpdateLocationRequest) Command() string       { return CmdUpdateLocation }
func (*GetLocationRequest) Command() string          { return CmdGetLocation }
func (*FindNearbyRequest) Command() string           { return CmdFindNearby }
func (*ListAllRequest) Command() string              { return CmdListAll }
func (*GetHistoryRequest) Command() string           { return CmdGetHistory }
func (*RemoveEntityRequest) Command() string         { return CmdRemoveEntity }

var requestTypes = map[string]func() Request{
	CmdLogin:                func() Request { return &LoginRequest{} },
	CmdLogout:               func() Request { return &LogoutRequest{} },
	CmdBalance:              func() Request { return &BalanceRequest{} },
	CmdTransfer:             func() Request { return &TransferRequest{} },
	CmdListAccounts:         func() Request { return &ListAccountsRequest{} },
	CmdAdminCreate:          func() Request { return &AdminCreateRequest{} },
	CmdAdminDelete:          func() Request { return &AdminDeleteRequest{} },
	CmdAdminSetBalance:      func() Request { return &AdminSetBalanceRequest{} },
	CmdAdminLock:            func() Request { return &AdminLockRequest{} },
	CmdAdminUnlock:          func() Request { return &AdminUnlockRequest{} },
	CmdAdminResetCredential: func() Request { return &AdminResetCredentialRequest{} },
	CmdAdminList:            func() Request { return &AdminListRequest{} },
	CmdUpdateLocation:       func() Request { return &UpdateLocationRequest{} },
	CmdGetLocation:          func() Request { return &GetLocationRequest{} },
	CmdFindNearby:           func() Request { return &FindNearbyRequest{} },
	CmdListAll:              func() Request { return &ListAllRequest{} },
	CmdGetHistory:           func() Request { return &GetHistoryRequest{} },
	CmdRemoveEntity:         func() Request { return &RemoveEntityRequest{} },
}

// Envelope is a decoded request together with its header.
type Envelope struct {
	Header
	Request Request
}

// DecodeRequest turns a raw frame into a typed request.
//
// Errors:
//   - codec.ErrMalformed: not decodable, drop without reply;
//   - common.ErrUnknownCommand, common.ErrInvalidRequest, common.ErrInvalidAmount:
//     the envelope is still returned so the caller can answer.
func DecodeRequest(raw []byte) (*Envelope, error) {
	h, err := PeekHeader(raw)
	if err != nil {
		return nil, err
	}
	env := &Envelope{Header: h}

	if !h.IsRequest() {
		return env, common.NewError(common.CodeInvalidRequest, "frame is not a request")
	}

	factory, ok := requestTypes[h.Command]
	if !ok {
		return env, common.Errorf(common.CodeUnknownCommand, "unknown command %q", h.Command)
	}

	req := factory()
	if err := codec.Unmarshal(raw, req); err != nil {
		if codec.IsTypeError(err) {
			return env, common.Errorf(common.CodeInvalidRequest, "bad field type: %v", err)
		}
		return nil, fmt.Errorf("%w: %v", codec.ErrMalformed, err)
	}
	if err := req.validate(); err != nil {
		return env, err
	}

	env.Request = req
	return env, nil
}

// EncodeRequest serializes req with the given header fields.
func EncodeRequest(h Header, req Request) ([]byte, error) {
	body, err := codec.Marshal(req)
	if err != nil {
		return nil, err
	}
	v, err := codec.Decode(body)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		m = map[string]any{}
	}

	m["command"] = req.Command()
	if h.RequestID != "" {
		m["request_id"] = h.RequestID
	}
	if h.Origin != nil {
		m["origin"] = map[string]any{"address": h.Origin.Address, "channel": int64(h.Origin.Channel)}
	}
	if h.Via != "" {
		m["via"] = h.Via
	}
	return codec.Encode(m)
}

func missing(field string) error {
	return common.Errorf(common.CodeInvalidRequest, "missing required field %q", field)
}

func parseAmount(raw any, field string) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, missing(field)
	}
	d, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, common.Errorf(common.CodeInvalidAmount, "%s: %v", field, err)
	}
	return d, nil
}

func finite(fields map[string]float64) error {
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return common.Errorf(common.CodeInvalidRequest, "field %q must be finite", name)
		}
	}
	return nil
}

func requireCredentials(username, password string) error {
	if username == "" {
		return missing("username")
	}
	if password == "" {
		return missing("password")
	}
	return nil
}

func (r *LoginRequest) validate() error   { return requireCredentials(r.Username, r.Password) }
func (r *LogoutRequest) validate() error  { return requireCredentials(r.Username, r.Password) }
func (r *BalanceRequest) validate() error { return requireCredentials(r.Username, r.Password) }

func (r *TransferRequest) validate() error {
	if err := requireCredentials(r.Username, r.Password); err != nil {
		return err
	}
	if r.Recipient == "" {
		return missing("recipient")
	}
	d, err := parseAmount(r.AmountRaw, "amount")
	if err != nil {
		return err
	}
	r.Amount = d
	return nil
}

func (*ListAccountsRequest) validate() error { return nil }

func requireAdmin(token, name string) error {
	if token == "" {
		return missing("admin_token")
	}
	if name == "" {
		return missing("name")
	}
	return nil
}

func (r *AdminCreateRequest) validate() error {
	if err := requireAdmin(r.AdminToken, r.Name); err != nil {
		return err
	}
	if r.Password == "" {
		return missing("password")
	}
	if r.BalanceRaw == nil {
		r.Balance = decimal.Zero
		return nil
	}
	d, err := parseAmount(r.BalanceRaw, "balance")
	if err != nil {
		return err
	}
	r.Balance = d
	return nil
}

func (r *AdminDeleteRequest) validate() error { return requireAdmin(r.AdminToken, r.Name) }

func (r *AdminSetBalanceRequest) validate() error {
	if err := requireAdmin(r.AdminToken, r.Name); err != nil {
		return err
	}
	d, err := parseAmount(r.AmountRaw, "amount")
	if err != nil {
		return err
	}
	r.Amount = d
	return nil
}

func (r *AdminLockRequest) validate() error   { return requireAdmin(r.AdminToken, r.Name) }
func (r *AdminUnlockRequest) validate() error { return requireAdmin(r.AdminToken, r.Name) }

func (r *AdminResetCredentialRequest) validate() error {
	if err := requireAdmin(r.AdminToken, r.Name); err != nil {
		return err
	}
	if r.Password == "" {
		return missing("password")
	}
	return nil
}

func (r *AdminListRequest) validate() error {
	if r.AdminToken == "" {
		return missing("admin_token")
	}
	return nil
}

func (r *UpdateLocationRequest) validate() error {
	if r.Entity == "" {
		return missing("entity")
	}
	return finite(map[string]float64{"x": r.X, "y": r.Y, "z": r.Z})
}

func (r *GetLocationRequest) validate() error {
	if r.Entity == "" {
		return missing("entity")
	}
	return nil
}

func (r *FindNearbyRequest) validate() error {
	if err := finite(map[string]float64{"x": r.X, "y": r.Y, "z": r.Z, "radius": r.Radius}); err != nil {
		return err
	}
	if r.Radius <= 0 {
		return common.NewError(common.CodeInvalidRequest, "radius must be positive")
	}
	if r.Limit < 0 {
		return common.NewError(common.CodeInvalidRequest, "limit must not be negative")
	}
	return nil
}

func (*ListAllRequest) validate() error { return nil }

func (r *GetHistoryRequest) validate() error {
	if r.Entity == "" {
		return missing("entity")
	}
	if r.Limit < 0 {
		return common.NewError(common.CodeInvalidRequest, "limit must not be negative")
	}
	return nil
}

func (r *RemoveEntityRequest) validate() error {
	if r.Entity == "" {
		return missing("entity")
	}
	return nil
}

// IsDropped reports whether a DecodeRequest error means the frame must be
// dropped silently rather than answered.
func IsDropped(err error) bool {
	return errors.Is(err, codec.ErrMalformed)
}

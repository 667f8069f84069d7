package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/codec"
	"github.com/dmitrijs2005/linkledger/internal/common"
)

// AccountSummary is the public view returned by list_accounts.
type AccountSummary struct {
	Name   string `cbor:"name"`
	Online bool   `cbor:"online"`
}

// AccountDetail is the administrative view returned by admin_list.
type AccountDetail struct {
	Name             string `cbor:"name"`
	Balance          string `cbor:"balance"`
	Locked           bool   `cbor:"locked"`
	LockReason       string `cbor:"lock_reason,omitempty"`
	LockedAt         int64  `cbor:"locked_at,omitempty"`
	CreatedAt        int64  `cbor:"created_at"`
	LastActivity     int64  `cbor:"last_activity,omitempty"`
	TransactionCount uint64 `cbor:"transaction_count"`
	RelayHint        string `cbor:"relay_hint,omitempty"`
	Online           bool   `cbor:"online"`
}

// Response answers exactly one request and echoes its correlation fields.
type Response struct {
	Type       string           `cbor:"type"`
	Command    string           `cbor:"command,omitempty"`
	RequestID  string           `cbor:"request_id,omitempty"`
	Success    bool             `cbor:"success"`
	Error      common.Code      `cbor:"error,omitempty"`
	Message    string           `cbor:"message,omitempty"`
	Balance    string           `cbor:"balance,omitempty"`
	Accounts   []AccountSummary `cbor:"accounts,omitempty"`
	Details    []AccountDetail  `cbor:"details,omitempty"`
	Total      int              `cbor:"total,omitempty"`
	LockReason string           `cbor:"lock_reason,omitempty"`
	LockedAt   int64            `cbor:"locked_at,omitempty"`
	Data       codec.RawMessage `cbor:"data,omitempty"`
	Origin     *Origin          `cbor:"origin,omitempty"`
	Via        string           `cbor:"via,omitempty"`
}

// NewResponse starts a successful response echoing h.
func NewResponse(h Header) *Response {
	return &Response{
		Type:      TypeResponse,
		Command:   h.Command,
		RequestID: h.RequestID,
		Success:   true,
		Origin:    h.Origin,
		Via:       h.Via,
	}
}

// Fail turns r into an error response. Errors without a code are reported as
// internal errors and their text is not leaked.
func (r *Response) Fail(err error) *Response {
	r.Success = false
	r.Balance = ""
	r.Accounts = nil
	r.Details = nil
	r.Total = 0
	r.Data = nil

	var e *common.Error
	if !errors.As(err, &e) {
		e = common.ErrInternal
	}
	r.Error = e.Code
	r.Message = e.Message
	r.LockReason = e.LockReason
	if !e.LockedAt.IsZero() {
		r.LockedAt = e.LockedAt.UnixMilli()
	}
	return r
}

// SetData encodes v into the free-form data field.
func (r *Response) SetData(v any) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	r.Data = raw
	return nil
}

// DecodeData decodes the data field into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	return codec.Unmarshal(r.Data, v)
}

// Err converts a failed response back into a *common.Error.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	e := &common.Error{Code: r.Error, Message: r.Message, LockReason: r.LockReason}
	if e.Code == "" {
		e.Code = common.CodeInternal
	}
	if r.LockedAt != 0 {
		e.LockedAt = time.UnixMilli(r.LockedAt).UTC()
	}
	return e
}

// Listing shapes shadow the omitempty fields of Response so that a
// successful listing always carries its collection and total, even when
// both are empty.
type (
	accountsListing struct {
		*Response
		Accounts []AccountSummary `cbor:"accounts"`
		Total    int              `cbor:"total"`
	}
	detailsListing struct {
		*Response
		Details []AccountDetail `cbor:"details"`
		Total   int             `cbor:"total"`
	}
	countedListing struct {
		*Response
		Total int `cbor:"total"`
	}
)

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Encode serializes r.
func (r *Response) Encode() ([]byte, error) {
	if !r.Success {
		return codec.Marshal(r)
	}
	switch r.Command {
	case CmdListAccounts:
		return codec.Marshal(&accountsListing{Response: r, Accounts: orEmpty(r.Accounts), Total: r.Total})
	case CmdAdminList:
		return codec.Marshal(&detailsListing{Response: r, Details: orEmpty(r.Details), Total: r.Total})
	case CmdFindNearby, CmdListAll:
		return codec.Marshal(&countedListing{Response: r, Total: r.Total})
	default:
		return codec.Marshal(r)
	}
}

// DecodeResponse parses a response frame.
func DecodeResponse(raw []byte) (*Response, error) {
	var r Response
	if err := codec.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrMalformed, err)
	}
	if r.Type != TypeResponse {
		return nil, fmt.Errorf("%w: not a response", codec.ErrMalformed)
	}
	return &r, nil
}

// ErrorResponse builds a standalone error response for h.
func ErrorResponse(h Header, err error) *Response {
	return NewResponse(h).Fail(err)
}

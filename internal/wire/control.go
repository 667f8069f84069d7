package wire

import (
	"fmt"

	"github.com/dmitrijs2005/linkledger/internal/codec"
)

// Endpoint kinds known to relays.
const (
	KindClient     = "client"
	KindController = "controller"
	KindManager    = "manager"
)

// Notification events broadcast by the server and fanned out by relays.
const (
	EventAccountLocked  = "account_locked"
	EventAccountDeleted = "account_deleted"
	EventBalanceChanged = "balance_changed"
)

// Control is every non-RPC frame. Only the fields relevant to Type are set.
type Control struct {
	Type            string         `cbor:"type"`
	RequestID       string         `cbor:"request_id,omitempty"`
	Name            string         `cbor:"name,omitempty"`
	RelayName       string         `cbor:"relay_name,omitempty"`
	ServerName      string         `cbor:"server_name,omitempty"`
	ServerConnected bool           `cbor:"server_connected,omitempty"`
	Endpoints       map[string]int `cbor:"endpoints,omitempty"`
	Event           string         `cbor:"event,omitempty"`
	Account         string         `cbor:"account,omitempty"`
	Audience        []string       `cbor:"audience,omitempty"`
	Origin          *Origin        `cbor:"origin,omitempty"`
}

// RegisterType returns the registration frame type for an endpoint kind.
func RegisterType(kind string) (string, error) {
	switch kind {
	case KindClient:
		return TypeClientRegister, nil
	case KindController:
		return TypeControllerRegister, nil
	case KindManager:
		return TypeManagerRegister, nil
	default:
		return "", fmt.Errorf("unknown endpoint kind %q", kind)
	}
}

// KindOf maps a registration frame type back to the endpoint kind.
func KindOf(frameType string) (string, bool) {
	switch frameType {
	case TypeClientRegister:
		return KindClient, true
	case TypeControllerRegister:
		return KindController, true
	case TypeManagerRegister:
		return KindManager, true
	default:
		return "", false
	}
}

// Encode serializes a control frame.
func (c *Control) Encode() ([]byte, error) {
	return codec.Marshal(c)
}

// DecodeControl parses a control frame.
func DecodeControl(raw []byte) (*Control, error) {
	var c Control
	if err := codec.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrMalformed, err)
	}
	return &c, nil
}

// Addressed reports whether a notify frame targets the given endpoint kind.
// An empty audience targets everybody.
func (c *Control) Addressed(kind string) bool {
	if len(c.Audience) == 0 {
		return true
	}
	for _, a := range c.Audience {
		if a == kind {
			return true
		}
	}
	return false
}

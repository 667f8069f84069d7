// Package wire defines the messages exchanged between clients, relays and the
// account server, and the one place where raw frames become typed values.
//
// A frame is a CBOR map. Requests carry "command"; everything else carries
// "type". Every frame may carry request_id, origin and via:
//
//	origin  the point-to-point endpoint that issued the request
//	via     the broadcast address of the relay that forwarded it
package wire

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/linkledger/internal/codec"
)

// ChannelRPC is the logical channel used for request/response traffic.
const ChannelRPC uint16 = 4000

// Frame types.
const (
	TypeResponse           = "response"
	TypeClientRegister     = "client_register"
	TypeControllerRegister = "controller_register"
	TypeManagerRegister    = "manager_register"
	TypeRelayAck           = "relay_ack"
	TypeRelayPing          = "relay_ping"
	TypeRelayHeartbeat     = "relay_heartbeat"
	TypeServerAck          = "server_ack"
	TypeEndpointHeartbeat  = "endpoint_heartbeat"
	TypeClientDeregister   = "client_deregister"
	TypeNotify             = "notify"
)

// Origin identifies the point-to-point endpoint a request came from.
type Origin struct {
	Address string `cbor:"address"`
	Channel uint16 `cbor:"channel"`
}

// Header holds the fields shared by every frame.
type Header struct {
	Type      string  `cbor:"type,omitempty"`
	Command   string  `cbor:"command,omitempty"`
	RequestID string  `cbor:"request_id,omitempty"`
	Origin    *Origin `cbor:"origin,omitempty"`
	Via       string  `cbor:"via,omitempty"`
}

// IsRequest reports whether the frame is an RPC request.
func (h Header) IsRequest() bool {
	return h.Type == "" && h.Command != ""
}

// PeekHeader decodes only the shared fields. Frames whose header fields have
// the wrong type are treated as malformed: without a readable command or
// request id there is nobody to answer.
func PeekHeader(raw []byte) (Header, error) {
	var h Header
	if err := codec.Unmarshal(raw, &h); err != nil {
		if errors.Is(err, codec.ErrMalformed) {
			return Header{}, err
		}
		return Header{}, fmt.Errorf("%w: %v", codec.ErrMalformed, err)
	}
	return h, nil
}

// Rewrite replaces origin and via on an arbitrary frame while preserving every
// other field, so relays can forward commands they do not understand.
func Rewrite(raw []byte, origin Origin, via string) ([]byte, error) {
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: frame is not a map", codec.ErrMalformed)
	}
	m["origin"] = map[string]any{
		"address": origin.Address,
		"channel": int64(origin.Channel),
	}
	if via == "" {
		delete(m, "via")
	} else {
		m["via"] = via
	}
	return codec.Encode(m)
}

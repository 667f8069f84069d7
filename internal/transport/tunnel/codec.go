package tunnel

import (
	"github.com/dmitrijs2005/linkledger/internal/codec"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype tunnels negotiate.
const codecName = "cbor"

// cborCodec lets gRPC carry Frame values without generated protobuf code.
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return codec.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return codec.Unmarshal(data, v) }
func (cborCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(cborCodec{})
}

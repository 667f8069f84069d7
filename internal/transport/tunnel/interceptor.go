package tunnel

import (
	"context"

	"github.com/dmitrijs2005/linkledger/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// LinkAddressHeader is the metadata key an endpoint announces its address in.
const LinkAddressHeader = "link-address"

type ctxKey string

const peerAddressKey ctxKey = "peerAddress"

// addressedStream overrides Context so handlers see the validated address.
type addressedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *addressedStream) Context() context.Context { return s.ctx }

func (s *GRPCServer) linkAddressInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if info.FullMethod == linkMethod {
		var addr string
		if md, ok := metadata.FromIncomingContext(ss.Context()); ok {
			values := md.Get(LinkAddressHeader)
			if len(values) > 0 {
				addr = values[0]
			}
		}
		if len(addr) == 0 {
			return status.Error(codes.Unauthenticated, "missing link address")
		}
		if !ValidAddress(addr) {
			return status.Error(codes.InvalidArgument, "invalid link address")
		}

		ss = &addressedStream{
			ServerStream: ss,
			ctx:          context.WithValue(ss.Context(), peerAddressKey, transport.Address(addr)),
		}
	}

	return handler(srv, ss)
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package multicast

import (
	"context"
	"net"
)

func listenReusable(ctx context.Context, address string) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp4", address)
}

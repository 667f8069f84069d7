package rpc

import (
	"context"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/wire"
)

// Broadcaster publishes account events as notify frames on the broadcast
// link. Relays fan them out to their registered endpoints.
type Broadcaster struct {
	link   transport.Link
	logger logging.Logger
}

func NewBroadcaster(link transport.Link, l logging.Logger) *Broadcaster {
	return &Broadcaster{link: link, logger: l.With("module", "notify")}
}

func (b *Broadcaster) Notify(ctx context.Context, event, account string, audience []string) {
	c := wire.Control{
		Type:     wire.TypeNotify,
		Event:    event,
		Account:  account,
		Audience: audience,
	}
	raw, err := c.Encode()
	if err != nil {
		b.logger.Error(ctx, "encode notify", "error", err)
		return
	}
	// best effort: the broadcast medium is lossy anyway
	if err := b.link.Send(ctx, transport.Broadcast, wire.ChannelRPC, raw); err != nil {
		b.logger.Warn(ctx, "notify send failed", "event", event, "account", account, "error", err)
	}
}

// Package multicast implements the broadcast transport over UDP multicast.
//
// Every node joins the same group and port. Frames are CBOR datagrams that
// name their sender and destination; nodes ignore frames addressed to someone
// else. Delivery is best effort: datagrams lost by the network or arriving
// while the inbox is full are gone.
package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/codec"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"golang.org/x/net/ipv4"
)

// MaxPayload keeps a datagram inside a single UDP packet.
const MaxPayload = 60 * 1024

const inboxSize = 1024

// Config describes the multicast group to join.
type Config struct {
	Group     string // e.g. "239.77.0.1:47000"
	Interface string // empty selects the system default
	TTL       int
	Loopback  bool // deliver our own datagrams back to us, like a radio echo
}

type datagram struct {
	From    string `cbor:"from"`
	To      string `cbor:"to"`
	Channel uint16 `cbor:"channel"`
	Payload []byte `cbor:"payload"`
}

// Link is a broadcast-class transport.Link.
type Link struct {
	self   transport.Address
	group  *net.UDPAddr
	conn   net.PacketConn
	pc     *ipv4.PacketConn
	logger logging.Logger

	inbox chan transport.Message
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// listenPacket is a seam so tests can substitute the socket.
var listenPacket = listenReusable

// Listen joins the group as self.
func Listen(ctx context.Context, self transport.Address, cfg Config, logger logging.Logger) (*Link, error) {
	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", cfg.Group, err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", group.IP)
	}

	conn, err := listenPacket(ctx, fmt.Sprintf("0.0.0.0:%d", group.Port))
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)

	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("interface %q: %w", cfg.Interface, err)
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set multicast interface: %w", err)
		}
	}

	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: group.IP}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join group %s: %w", group.IP, err)
	}
	if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set loopback: %w", err)
	}
	if cfg.TTL > 0 {
		if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set ttl: %w", err)
		}
	}

	l := &Link{
		self:   self,
		group:  group,
		conn:   conn,
		pc:     pc,
		logger: logger.With("module", "multicast", "address", string(self)),
		inbox:  make(chan transport.Message, inboxSize),
		done:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.readLoop()

	return l, nil
}

func (l *Link) LocalAddress() transport.Address { return l.self }
func (l *Link) Class() transport.Class          { return transport.ClassBroadcast }

func (l *Link) Send(ctx context.Context, to transport.Address, channel uint16, payload []byte) error {
	if len(payload) > MaxPayload {
		return transport.ErrTooLarge
	}
	select {
	case <-l.done:
		return transport.ErrClosed
	default:
	}

	frame, err := codec.Marshal(datagram{From: string(l.self), To: string(to), Channel: channel, Payload: payload})
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(deadline)
		defer l.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := l.conn.WriteTo(frame, l.group); err != nil {
		return fmt.Errorf("multicast write: %w", err)
	}
	return nil
}

func (l *Link) Receive(ctx context.Context, timeout time.Duration) (transport.Message, error) {
	return transport.Wait(ctx, l.inbox, l.done, timeout)
}

func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		_ = l.pc.LeaveGroup(nil, &net.UDPAddr{IP: l.group.IP})
		err = l.conn.Close()
		l.wg.Wait()
	})
	return err
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-l.done:
				return
			default:
			}
			l.logger.Warn(context.Background(), "multicast read failed", "error", err)
			continue
		}

		msg, ok := l.accept(buf[:n])
		if !ok {
			continue
		}

		select {
		case l.inbox <- msg:
		default:
			l.logger.Debug(context.Background(), "inbox full, dropping datagram", "from", string(msg.From))
		}
	}
}

// accept decodes a datagram and filters out frames for other nodes.
func (l *Link) accept(raw []byte) (transport.Message, bool) {
	var d datagram
	if err := codec.Unmarshal(raw, &d); err != nil {
		l.logger.Debug(context.Background(), "dropping malformed datagram", "error", err)
		return transport.Message{}, false
	}
	to := transport.Address(d.To)
	from := transport.Address(d.From)
	if to != transport.Broadcast && to != l.self && from != l.self {
		return transport.Message{}, false
	}
	return transport.Message{
		From:    from,
		To:      to,
		Channel: d.Channel,
		Class:   transport.ClassBroadcast,
		Payload: d.Payload,
	}, true
}

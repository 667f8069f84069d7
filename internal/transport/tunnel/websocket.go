package tunnel

import (
	"net/http"
	"sync"

	"github.com/dmitrijs2005/linkledger/internal/codec"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebsocketHandler upgrades requests carrying ?address=<endpoint> and attaches
// them to hub. Frames are binary CBOR messages; malformed ones are discarded.
func WebsocketHandler(hub *Hub, logger logging.Logger) http.Handler {
	log := logger.With("module", "tunnel_ws")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.URL.Query().Get("address")
		if !ValidAddress(addr) {
			http.Error(w, "missing or invalid address", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn(r.Context(), "websocket upgrade failed", "address", addr, "error", err)
			return
		}

		p := &wsPeer{conn: conn}
		if err := hub.attach(transport.Address(addr), p); err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			conn.Close()
			return
		}
		defer func() {
			hub.detach(transport.Address(addr), p)
			conn.Close()
		}()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			var f Frame
			if err := codec.Unmarshal(data, &f); err != nil {
				log.Debug(r.Context(), "discarding malformed tunnel frame", "address", addr, "error", err)
				continue
			}
			if err := hub.deliver(r.Context(), transport.Address(addr), &f); err != nil {
				return
			}
		}
	})
}

type wsPeer struct {
	conn *websocket.Conn
	once sync.Once
}

func (p *wsPeer) send(f *Frame) error {
	data, err := codec.Marshal(f)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *wsPeer) close() {
	p.once.Do(func() { p.conn.Close() })
}

// wsConn is the endpoint side of a websocket tunnel.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(f *Frame) error {
	data, err := codec.Marshal(f)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Recv(f *Frame) error {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := codec.Unmarshal(data, f); err != nil {
			continue
		}
		return nil
	}
}

func (c *wsConn) Close() error { return c.conn.Close() }

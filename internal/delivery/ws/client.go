package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ardhifach/lanmsg/internal/domain"
)

// Client is one open duplex connection, bound to a single authenticated user
// for its lifetime. The pumps own the connection and its final disposal; the
// registry and call rooms only hold references to it.
type Client struct {
	UserID int64

	gw       *Gateway
	conn     *websocket.Conn
	send     chan []byte
	teardown sync.Once
}

// NewClient wraps an upgraded, authenticated connection
func NewClient(gw *Gateway, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		UserID: userID,
		gw:     gw,
		conn:   conn,
		send:   make(chan []byte, domain.SendBufferSize),
	}
}

// TrySend queues a frame without blocking. A full buffer counts as a failed
// delivery and returns false; the frame is dropped for this connection.
func (c *Client) TrySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendEvent queues an event envelope for delivery
func (c *Client) SendEvent(ev domain.Event) bool {
	return c.TrySend(ev.Encode())
}

// ForceClose tears down the transport with the given close code. The read
// pump then exits and cleanup follows the usual path.
func (c *Client) ForceClose(code int) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(domain.WriteWait))
	_ = c.conn.Close()
}

// cleanup deregisters the connection and evicts it from any call room it is
// still bound to. Runs exactly once per connection regardless of which close
// path fired first.
func (c *Client) cleanup() {
	c.teardown.Do(func() {
		c.gw.registry.Unregister(c.UserID, c)
		c.gw.rooms.DropConnection(c)
	})
}

// controlHandlers is the dispatch table for inbound control messages.
// Adding a message kind means adding an entry here; types with no entry are
// ignored without closing the connection.
var controlHandlers = map[domain.ControlType]func(*Client, domain.Control){
	domain.ControlPing:       (*Client).handlePing,
	domain.ControlCallJoin:   (*Client).handleCallJoin,
	domain.ControlCallLeave:  (*Client).handleCallLeave,
	domain.ControlCallState:  (*Client).handleCallState,
	domain.ControlCallSignal: (*Client).handleCallSignal,
}

// ReadPump consumes inbound control messages one at a time, strictly
// sequential per connection, until the transport closes for any reason.
func (c *Client) ReadPump() {
	defer func() {
		c.cleanup()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(domain.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(domain.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(domain.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Int64("user", c.UserID).Err(err).Msg("connection closed")
			}
			break
		}

		var ctl domain.Control
		if err := json.Unmarshal(raw, &ctl); err != nil {
			// Malformed input is ignored, not fatal
			continue
		}
		c.handleControl(ctl)
	}
}

// handleControl routes one control message through the dispatch table
func (c *Client) handleControl(ctl domain.Control) {
	handler, ok := controlHandlers[ctl.Type]
	if !ok {
		return
	}
	handler(c, ctl)
}

func (c *Client) handlePing(domain.Control) {
	c.SendEvent(domain.NewEvent(domain.EventPong, nil))
}

// handleCallJoin applies the permission checks before the room transition:
// the requester must be a chat member, and for direct chats the callee must
// be callable per their block list and settings. A refused join mutates
// nothing and sends nothing.
func (c *Client) handleCallJoin(ctl domain.Control) {
	if ctl.ChatID <= 0 {
		return
	}
	dir := c.gw.directory
	if !dir.IsChatMember(c.UserID, ctl.ChatID) {
		return
	}
	kind, err := dir.ChatKind(ctl.ChatID)
	if err != nil {
		return
	}
	if kind == domain.ChatDirect {
		peer, ok := dir.DirectPeer(ctl.ChatID, c.UserID)
		if !ok {
			return
		}
		if allowed, reason := dir.MayCall(c.UserID, peer); !allowed {
			log.Debug().Int64("user", c.UserID).Int64("chat", ctl.ChatID).Str("reason", reason).Msg("call join refused")
			return
		}
	}
	c.gw.rooms.Join(ctl.ChatID, c.UserID, c, ctl.State())
}

func (c *Client) handleCallLeave(ctl domain.Control) {
	if ctl.ChatID <= 0 {
		return
	}
	c.gw.rooms.Leave(ctl.ChatID, c.UserID)
}

func (c *Client) handleCallState(ctl domain.Control) {
	if ctl.ChatID <= 0 {
		return
	}
	c.gw.rooms.UpdateState(ctl.ChatID, c.UserID, ctl.State())
}

func (c *Client) handleCallSignal(ctl domain.Control) {
	if ctl.ChatID <= 0 || ctl.ToUser <= 0 {
		return
	}
	c.gw.rooms.RelaySignal(ctl.ChatID, c.UserID, ctl.ToUser, ctl.Signal)
}

// WritePump pumps queued frames to the connection and keeps the transport
// alive with periodic pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(domain.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(domain.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			// Drain queued frames into the same websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(domain.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

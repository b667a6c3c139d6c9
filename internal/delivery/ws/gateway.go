package ws

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ardhifach/lanmsg/internal/domain"
)

// Directory is the narrow view of the persistence layer the real-time core
// consumes. Implementations answer synchronous queries only; the core never
// writes through it.
type Directory interface {
	// Authenticate resolves a session token to a user identity
	Authenticate(token string) (int64, bool)
	// ChatMembers returns the user identities belonging to a chat
	ChatMembers(chatID int64) ([]int64, error)
	// ChatKind reports whether a chat is direct or group
	ChatKind(chatID int64) (domain.ChatKind, error)
	// DirectPeer returns the other member of a direct chat
	DirectPeer(chatID, userID int64) (int64, bool)
	// MayCall encodes the callee's block list and call settings
	MayCall(caller, callee int64) (allowed bool, reason string)
	// IsChatMember reports whether the user belongs to the chat
	IsChatMember(userID, chatID int64) bool
}

// Gateway wires the registry, the dispatcher, and the call rooms together.
// It is the surface the CRUD layer pushes through after committing a write,
// and the attach point for freshly authenticated connections.
type Gateway struct {
	registry  *Registry
	rooms     *CallRooms
	dispatch  *Dispatcher
	directory Directory
}

// NewGateway creates the real-time core over the given directory
func NewGateway(dir Directory) *Gateway {
	registry := NewRegistry()
	return &Gateway{
		registry:  registry,
		rooms:     NewCallRooms(),
		dispatch:  NewDispatcher(registry, dir),
		directory: dir,
	}
}

// Attach registers an authenticated connection, acknowledges it with a hello
// event, and starts its pumps
func (g *Gateway) Attach(conn *websocket.Conn, userID int64) *Client {
	c := NewClient(g, conn, userID)
	g.registry.Register(userID, c)
	c.SendEvent(domain.NewEvent(domain.EventHello, domain.HelloPayload{UserID: userID}))
	log.Debug().Int64("user", userID).Msg("connection attached")

	go c.WritePump()
	go c.ReadPump()
	return c
}

// PushToUser delivers an event to all of one user's connections
func (g *Gateway) PushToUser(userID int64, ev domain.Event) {
	g.dispatch.PushToUser(userID, ev)
}

// BroadcastToChat delivers an event to every member of a chat
func (g *Gateway) BroadcastToChat(chatID int64, ev domain.Event) {
	g.dispatch.BroadcastToChat(chatID, ev)
}

// DisconnectAll force-closes every live connection for a user. Used when an
// account is deleted; each connection's own teardown path handles the
// registry and call room cleanup.
func (g *Gateway) DisconnectAll(userID int64) {
	for _, c := range g.registry.ConnectionsFor(userID) {
		c.ForceClose(websocket.CloseNormalClosure)
	}
}

// Online reports whether the user has at least one live connection
func (g *Gateway) Online(userID int64) bool {
	return g.registry.Online(userID)
}

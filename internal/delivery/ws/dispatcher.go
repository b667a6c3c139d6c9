package ws

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ardhifach/lanmsg/internal/domain"
)

// MembershipSource resolves chat membership for fan-out
type MembershipSource interface {
	ChatMembers(chatID int64) ([]int64, error)
}

// Dispatcher fans events out to live connections. Delivery is best-effort,
// at-most-once: a connection that cannot take the frame is treated as dead,
// pruned from the registry, and the event dropped for it. Failures are never
// surfaced to the caller.
type Dispatcher struct {
	registry *Registry
	members  MembershipSource
}

// NewDispatcher creates a dispatcher over the given registry
func NewDispatcher(registry *Registry, members MembershipSource) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		members:  members,
	}
}

// PushToUser delivers an event to every live connection of one user.
// A user with no connections is a no-op.
func (d *Dispatcher) PushToUser(userID int64, ev domain.Event) {
	conns := d.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		return
	}
	data := ev.Encode()
	for _, c := range conns {
		if !c.TrySend(data) {
			d.registry.Unregister(userID, c)
			c.ForceClose(websocket.CloseGoingAway)
			log.Debug().Int64("user", userID).Str("event", string(ev.Type)).Msg("pruned dead connection")
		}
	}
}

// BroadcastToChat delivers an event to every member of a chat, including the
// sender. Delivery order across members is unspecified.
func (d *Dispatcher) BroadcastToChat(chatID int64, ev domain.Event) {
	members, err := d.members.ChatMembers(chatID)
	if err != nil {
		log.Warn().Err(err).Int64("chat", chatID).Msg("membership lookup failed, event dropped")
		return
	}
	for _, uid := range members {
		d.PushToUser(uid, ev)
	}
}

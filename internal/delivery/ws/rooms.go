package ws

import (
	"encoding/json"
	"sync"

	"github.com/ardhifach/lanmsg/internal/domain"
)

// callRoom tracks the users currently signaling for one chat's call.
// conns and states always hold the same key set; order preserves the join
// sequence so participant snapshots are deterministic.
type callRoom struct {
	conns  map[int64]*Client
	states map[int64]domain.ParticipantState
	order  []int64
}

// CallRooms owns the ephemeral per-chat call state. A room exists only while
// at least one participant is present and is never persisted. All transitions
// run under a single lock; room event sends are non-blocking, which keeps the
// snapshot-before-notify ordering deterministic without releasing it.
type CallRooms struct {
	mu    sync.Mutex
	rooms map[int64]*callRoom
}

// NewCallRooms creates an empty call room manager
func NewCallRooms() *CallRooms {
	return &CallRooms{
		rooms: make(map[int64]*callRoom),
	}
}

// Join adds or re-binds a participant. A re-join replaces the stored
// connection and overwrites the state wholesale, so reconnects need no
// explicit leave and keep their slot in the join order. The joiner receives
// the room snapshot before the rest of the room hears about the join.
// Permission checks happen at the connection layer before this transition.
func (cr *CallRooms) Join(chatID, userID int64, c *Client, state domain.ParticipantState) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	room, ok := cr.rooms[chatID]
	if !ok {
		room = &callRoom{
			conns:  make(map[int64]*Client),
			states: make(map[int64]domain.ParticipantState),
		}
		cr.rooms[chatID] = room
	}

	if _, rejoin := room.conns[userID]; !rejoin {
		room.order = append(room.order, userID)
	}
	room.conns[userID] = c
	room.states[userID] = state

	others := make([]int64, 0, len(room.order))
	for _, uid := range room.order {
		if uid != userID {
			others = append(others, uid)
		}
	}
	states := make(map[int64]domain.ParticipantState, len(room.states))
	for uid, st := range room.states {
		states[uid] = st
	}

	c.SendEvent(domain.NewEvent(domain.EventCallParticipants, domain.ParticipantsPayload{
		ChatID: chatID,
		Users:  others,
		States: states,
	}))

	joined := domain.NewEvent(domain.EventCallUserJoined, domain.UserJoinedPayload{
		ChatID: chatID,
		UserID: userID,
		State:  state,
	}).Encode()
	for uid, peer := range room.conns {
		if uid != userID {
			peer.TrySend(joined)
		}
	}
}

// Leave removes the participant if present and notifies the remainder.
// Leaving a room the user is not in is a no-op.
func (cr *CallRooms) Leave(chatID, userID int64) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.removeLocked(chatID, userID)
}

// removeLocked drops the (chat, user) entry from both mappings, deletes the
// room if it empties, and sends user_left to anyone still in it.
// Caller must hold cr.mu.
func (cr *CallRooms) removeLocked(chatID, userID int64) {
	room, ok := cr.rooms[chatID]
	if !ok {
		return
	}
	if _, joined := room.conns[userID]; !joined {
		return
	}

	delete(room.conns, userID)
	delete(room.states, userID)
	for i, uid := range room.order {
		if uid == userID {
			room.order = append(room.order[:i], room.order[i+1:]...)
			break
		}
	}

	if len(room.conns) == 0 {
		delete(cr.rooms, chatID)
		return
	}

	left := domain.NewEvent(domain.EventCallUserLeft, domain.UserLeftPayload{
		ChatID: chatID,
		UserID: userID,
	}).Encode()
	for _, peer := range room.conns {
		peer.TrySend(left)
	}
}

// UpdateState overwrites the participant's whole state record and notifies
// the rest of the room. An update from a user not in the room is silently
// ignored — the client may be stale.
func (cr *CallRooms) UpdateState(chatID, userID int64, state domain.ParticipantState) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	room, ok := cr.rooms[chatID]
	if !ok {
		return
	}
	if _, joined := room.states[userID]; !joined {
		return
	}
	room.states[userID] = state

	changed := domain.NewEvent(domain.EventCallUserState, domain.UserStatePayload{
		ChatID: chatID,
		UserID: userID,
		State:  state,
	}).Encode()
	for uid, peer := range room.conns {
		if uid != userID {
			peer.TrySend(changed)
		}
	}
}

// RelaySignal forwards an opaque negotiation payload to one participant's
// connection. A target not currently in the room means a silent drop:
// signaling is racy and the negotiation protocol above retries.
func (cr *CallRooms) RelaySignal(chatID, fromUser, toUser int64, signal json.RawMessage) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	room, ok := cr.rooms[chatID]
	if !ok {
		return
	}
	target, ok := room.conns[toUser]
	if !ok {
		return
	}
	target.SendEvent(domain.NewEvent(domain.EventCallSignal, domain.SignalPayload{
		ChatID:   chatID,
		FromUser: fromUser,
		Signal:   signal,
	}))
}

// DropConnection removes every room membership bound to exactly this
// connection. The comparison is by connection identity, not user identity:
// a user who already re-joined on a newer connection keeps their seat when
// the stale connection's teardown fires.
func (cr *CallRooms) DropConnection(c *Client) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	for chatID, room := range cr.rooms {
		if room.conns[c.UserID] == c {
			cr.removeLocked(chatID, c.UserID)
		}
	}
}

// Participants returns the room's current members in join order, or nil if
// no room exists for the chat
func (cr *CallRooms) Participants(chatID int64) []int64 {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	room, ok := cr.rooms[chatID]
	if !ok {
		return nil
	}
	out := make([]int64, len(room.order))
	copy(out, room.order)
	return out
}

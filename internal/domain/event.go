package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType tags an outbound event envelope
type EventType string

const (
	EventHello            EventType = "hello"
	EventPong             EventType = "pong"
	EventCallParticipants EventType = "call:participants"
	EventCallUserJoined   EventType = "call:user_joined"
	EventCallUserLeft     EventType = "call:user_left"
	EventCallUserState    EventType = "call:user_state"
	EventCallSignal       EventType = "call:signal"

	// Tags originated by the CRUD layer after it commits a write.
	// The core forwards these opaquely and never inspects the payload.
	EventMessageNew        EventType = "message:new"
	EventMessageDeletedMe  EventType = "message:deleted_me"
	EventMessageDeletedAll EventType = "message:deleted_all"
	EventFriendRequest     EventType = "friend:request"
	EventFriendAccepted    EventType = "friend:accepted"
	EventGroupDeleted      EventType = "group:deleted"
	EventGroupMemberAdded  EventType = "group:member_added"
	EventChatAdded         EventType = "chat:added"
	EventUserBlocked       EventType = "user:blocked"
)

// Event is the envelope pushed to client connections. Events are transient:
// never stored, never retried.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an envelope around a marshaled payload. A nil payload is
// allowed for bare acknowledgments like pong.
func NewEvent(t EventType, payload interface{}) Event {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

// Encode returns the wire form of the event
func (e Event) Encode() []byte {
	data, _ := json.Marshal(e)
	return data
}

// ParticipantState holds a call participant's feature toggles
type ParticipantState struct {
	Mic    bool `json:"mic"`
	Cam    bool `json:"cam"`
	Screen bool `json:"screen"`
}

// HelloPayload acknowledges a freshly authenticated connection
type HelloPayload struct {
	UserID int64 `json:"user_id"`
}

// ParticipantsPayload is the room snapshot sent to a joiner. Users lists the
// other participants in join order; States covers everyone in the room
// including the joiner.
type ParticipantsPayload struct {
	ChatID int64                      `json:"chat_id"`
	Users  []int64                    `json:"users"`
	States map[int64]ParticipantState `json:"states"`
}

// UserJoinedPayload announces a new call participant to the rest of the room
type UserJoinedPayload struct {
	ChatID int64            `json:"chat_id"`
	UserID int64            `json:"user_id"`
	State  ParticipantState `json:"state"`
}

// UserLeftPayload announces a departed call participant
type UserLeftPayload struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// UserStatePayload announces a participant's replaced state record
type UserStatePayload struct {
	ChatID int64            `json:"chat_id"`
	UserID int64            `json:"user_id"`
	State  ParticipantState `json:"state"`
}

// SignalPayload carries an opaque negotiation payload between two
// participants; the media itself flows peer to peer outside this system.
type SignalPayload struct {
	ChatID   int64           `json:"chat_id"`
	FromUser int64           `json:"from_user"`
	Signal   json.RawMessage `json:"signal"`
}

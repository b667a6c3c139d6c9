package domain

import "encoding/json"

// ControlType tags an inbound control message from a client connection
type ControlType string

const (
	ControlPing       ControlType = "ping"
	ControlCallJoin   ControlType = "call:join"
	ControlCallLeave  ControlType = "call:leave"
	ControlCallState  ControlType = "call:state"
	ControlCallSignal ControlType = "call:signal"
)

// Control is an inbound control message. Fields sit flat next to the type
// tag; only the fields relevant to the tagged kind are read.
type Control struct {
	Type   ControlType     `json:"type"`
	ChatID int64           `json:"chat_id,omitempty"`
	ToUser int64           `json:"to_user,omitempty"`
	Mic    *bool           `json:"mic,omitempty"`
	Cam    *bool           `json:"cam,omitempty"`
	Screen *bool           `json:"screen,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// State resolves the flag fields into a full participant state.
// Mic defaults to on, cam and screen to off.
func (c Control) State() ParticipantState {
	s := ParticipantState{Mic: true}
	if c.Mic != nil {
		s.Mic = *c.Mic
	}
	if c.Cam != nil {
		s.Cam = *c.Cam
	}
	if c.Screen != nil {
		s.Screen = *c.Screen
	}
	return s
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ardhifach/lanmsg/internal/config"
	"github.com/ardhifach/lanmsg/internal/delivery/ws"
	"github.com/ardhifach/lanmsg/internal/domain"
)

// fakeDirectory answers directory queries from fixed maps
type fakeDirectory struct {
	tokens  map[string]int64
	members map[int64][]int64
	kinds   map[int64]domain.ChatKind
	denied  map[[2]int64]string
}

func (d *fakeDirectory) Authenticate(token string) (int64, bool) {
	id, ok := d.tokens[token]
	return id, ok
}

func (d *fakeDirectory) ChatMembers(chatID int64) ([]int64, error) {
	members, ok := d.members[chatID]
	if !ok {
		return nil, errors.New("no such chat")
	}
	return members, nil
}

func (d *fakeDirectory) ChatKind(chatID int64) (domain.ChatKind, error) {
	kind, ok := d.kinds[chatID]
	if !ok {
		return "", errors.New("no such chat")
	}
	return kind, nil
}

func (d *fakeDirectory) DirectPeer(chatID, userID int64) (int64, bool) {
	for _, m := range d.members[chatID] {
		if m != userID {
			return m, true
		}
	}
	return 0, false
}

func (d *fakeDirectory) MayCall(caller, callee int64) (bool, string) {
	if reason, ok := d.denied[[2]int64{caller, callee}]; ok {
		return false, reason
	}
	return true, ""
}

func (d *fakeDirectory) IsChatMember(userID, chatID int64) bool {
	for _, m := range d.members[chatID] {
		if m == userID {
			return true
		}
	}
	return false
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeDirectory) {
	t.Helper()
	dir := &fakeDirectory{
		tokens:  map[string]int64{"tok-alice": 1, "tok-bob": 2},
		members: map[int64][]int64{10: {1, 2}},
		kinds:   map[int64]domain.ChatKind{10: domain.ChatDirect},
	}
	h := NewHandler(ws.NewGateway(dir), dir)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, dir
}

// wsClient splits batched frames back into individual events; the write pump
// may coalesce queued events into one frame separated by newlines.
type wsClient struct {
	conn    *websocket.Conn
	pending []string
}

func dial(t *testing.T, srv *httptest.Server, token string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, msg string) {
	t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEvent(t *testing.T, c *wsClient) domain.Event {
	t.Helper()
	if len(c.pending) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line != "" {
				c.pending = append(c.pending, line)
			}
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	var ev domain.Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("decode event %q: %v", line, err)
	}
	return ev
}

func TestIsOriginAllowed(t *testing.T) {
	orig := config.AppConfig.AllowedOrigins
	config.AppConfig.AllowedOrigins = []string{"http://localhost:8080"}
	defer func() { config.AppConfig.AllowedOrigins = orig }()

	tests := []struct {
		origin   string
		expected bool
	}{
		{"http://localhost:8080", true},
		{"", true}, // Empty origin allowed (same-origin)
		{"http://evil.com", false},
	}
	for _, tc := range tests {
		if got := isOriginAllowed(tc.origin); got != tc.expected {
			t.Errorf("isOriginAllowed(%q) = %v, expected %v", tc.origin, got, tc.expected)
		}
	}

	config.AppConfig.AllowedOrigins = []string{"*"}
	if !isOriginAllowed("http://anywhere.example") {
		t.Error("wildcard should allow any origin")
	}
}

func TestHandleWebSocket_AuthFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "bogus")
	_, _, err := conn.conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

func TestHandleWebSocket_HelloOnConnect(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "tok-alice")
	ev := readEvent(t, conn)
	if ev.Type != domain.EventHello {
		t.Fatalf("first event = %s, want %s", ev.Type, domain.EventHello)
	}
	var hello domain.HelloPayload
	if err := json.Unmarshal(ev.Payload, &hello); err != nil {
		t.Fatalf("decode hello: %v", err)
	}
	if hello.UserID != 1 {
		t.Errorf("hello user_id = %d, want 1", hello.UserID)
	}
}

func TestHandleWebSocket_PingPong(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "tok-alice")
	readEvent(t, conn) // hello

	conn.send(t, `{"type":"ping"}`)
	if ev := readEvent(t, conn); ev.Type != domain.EventPong {
		t.Errorf("reply = %s, want %s", ev.Type, domain.EventPong)
	}
}

func TestHandleWebSocket_CallFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "tok-alice")
	readEvent(t, alice)
	bob := dial(t, srv, "tok-bob")
	readEvent(t, bob)

	// alice joins the call in chat 10
	alice.send(t, `{"type":"call:join","chat_id":10}`)
	ev := readEvent(t, alice)
	if ev.Type != domain.EventCallParticipants {
		t.Fatalf("joiner got %s, want %s", ev.Type, domain.EventCallParticipants)
	}
	var snap domain.ParticipantsPayload
	json.Unmarshal(ev.Payload, &snap)
	if len(snap.Users) != 0 {
		t.Errorf("first joiner should see an empty room, got %v", snap.Users)
	}
	if !snap.States[1].Mic {
		t.Error("mic should default to on")
	}

	// bob joins with the camera on
	bob.send(t, `{"type":"call:join","chat_id":10,"cam":true}`)
	ev = readEvent(t, bob)
	if ev.Type != domain.EventCallParticipants {
		t.Fatalf("joiner got %s, want %s", ev.Type, domain.EventCallParticipants)
	}
	json.Unmarshal(ev.Payload, &snap)
	if len(snap.Users) != 1 || snap.Users[0] != 1 {
		t.Errorf("bob's snapshot should list alice, got %v", snap.Users)
	}

	ev = readEvent(t, alice)
	if ev.Type != domain.EventCallUserJoined {
		t.Fatalf("alice got %s, want %s", ev.Type, domain.EventCallUserJoined)
	}
	var joined domain.UserJoinedPayload
	json.Unmarshal(ev.Payload, &joined)
	if joined.UserID != 2 || !joined.State.Cam {
		t.Errorf("unexpected join announcement: %+v", joined)
	}

	// bob mutes
	bob.send(t, `{"type":"call:state","chat_id":10,"mic":false,"cam":true}`)
	ev = readEvent(t, alice)
	if ev.Type != domain.EventCallUserState {
		t.Fatalf("alice got %s, want %s", ev.Type, domain.EventCallUserState)
	}
	var state domain.UserStatePayload
	json.Unmarshal(ev.Payload, &state)
	if state.UserID != 2 || state.State.Mic || !state.State.Cam {
		t.Errorf("unexpected state announcement: %+v", state)
	}

	// alice relays a negotiation payload to bob
	alice.send(t, `{"type":"call:signal","chat_id":10,"to_user":2,"signal":{"sdp":"offer"}}`)
	ev = readEvent(t, bob)
	if ev.Type != domain.EventCallSignal {
		t.Fatalf("bob got %s, want %s", ev.Type, domain.EventCallSignal)
	}
	var sig domain.SignalPayload
	json.Unmarshal(ev.Payload, &sig)
	if sig.FromUser != 1 || string(sig.Signal) != `{"sdp":"offer"}` {
		t.Errorf("unexpected signal: %+v", sig)
	}

	// alice leaves; bob hears about it
	alice.send(t, `{"type":"call:leave","chat_id":10}`)
	ev = readEvent(t, bob)
	if ev.Type != domain.EventCallUserLeft {
		t.Fatalf("bob got %s, want %s", ev.Type, domain.EventCallUserLeft)
	}
	var left domain.UserLeftPayload
	json.Unmarshal(ev.Payload, &left)
	if left.UserID != 1 {
		t.Errorf("departed user = %d, want 1", left.UserID)
	}
}

func TestHandleWebSocket_DisconnectLeavesCall(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "tok-alice")
	readEvent(t, alice)
	bob := dial(t, srv, "tok-bob")
	readEvent(t, bob)

	alice.send(t, `{"type":"call:join","chat_id":10}`)
	readEvent(t, alice)
	bob.send(t, `{"type":"call:join","chat_id":10}`)
	readEvent(t, bob)
	readEvent(t, alice) // bob's join announcement

	// alice's socket dies without an explicit leave
	alice.conn.Close()

	ev := readEvent(t, bob)
	if ev.Type != domain.EventCallUserLeft {
		t.Fatalf("bob got %s, want %s", ev.Type, domain.EventCallUserLeft)
	}
	var left domain.UserLeftPayload
	json.Unmarshal(ev.Payload, &left)
	if left.UserID != 1 {
		t.Errorf("departed user = %d, want 1", left.UserID)
	}
}

func TestHandleWebSocket_DeniedDirectCall(t *testing.T) {
	srv, dir := newTestServer(t)
	dir.denied = map[[2]int64]string{{1, 2}: "user has disabled calls"}

	alice := dial(t, srv, "tok-alice")
	readEvent(t, alice)

	alice.send(t, `{"type":"call:join","chat_id":10}`)

	// refusal is silent; the connection stays up and still answers pings
	alice.send(t, `{"type":"ping"}`)
	if ev := readEvent(t, alice); ev.Type != domain.EventPong {
		t.Errorf("got %s, want %s (join should be silently refused)", ev.Type, domain.EventPong)
	}
}

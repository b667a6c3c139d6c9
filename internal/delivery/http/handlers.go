package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ardhifach/lanmsg/internal/config"
	"github.com/ardhifach/lanmsg/internal/delivery/ws"
)

// isOriginAllowed checks if the origin is in the allowed list
func isOriginAllowed(origin string) bool {
	// Empty origin is allowed (same-origin requests)
	if origin == "" {
		return true
	}

	for _, allowed := range config.AppConfig.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return isOriginAllowed(origin)
	},
}

type Handler struct {
	gateway   *ws.Gateway
	directory ws.Directory
}

func NewHandler(gw *ws.Gateway, dir ws.Directory) *Handler {
	return &Handler{
		gateway:   gw,
		directory: dir,
	}
}

// HandleWebSocket upgrades the connection and attaches it to the gateway.
// Authentication happens after the upgrade so the client gets a proper close
// frame (policy violation) instead of an opaque handshake failure.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID, ok := h.directory.Authenticate(token)
	if !ok {
		log.Debug().Str("remote", r.RemoteAddr).Msg("websocket auth failed")
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}

	h.gateway.Attach(conn, userID)
}

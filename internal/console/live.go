package console

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const liveWriteTimeout = 5 * time.Second

// The console is served on the local network without an origin
// allowlist, same as the rest of the endpoints.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleLive upgrades the connection and streams every published window
// to the viewer until either side hangs up. Windows the viewer cannot
// absorb in time are dropped by the broadcaster, never queued without
// bound.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Debug().Err(err).Msg("Live stream upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.cast.subscribe()
	defer s.cast.unsubscribe(sub)

	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Live stream viewer connected")

	// Inbound frames are discarded; reading is only needed to notice the
	// viewer hanging up and to answer control frames.
	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case win, ok := <-sub:
			if !ok {
				deadline := time.Now().Add(liveWriteTimeout)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)

				return
			}

			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(win); err != nil {
				s.log.Debug().Err(err).Msg("Live stream viewer lost")
				return
			}
		case <-hangup:
			s.log.Debug().Msg("Live stream viewer disconnected")
			return
		}
	}
}

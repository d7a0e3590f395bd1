package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/supplychain/notifyconsole/internal/notify"
)

const liveWriteTimeout = 5 * time.Second

type liveFrame struct {
	Event      notify.NormalizedEvent `json:"event"`
	ReceivedAt time.Time              `json:"receivedAt"`
}

// handleLive upgrades to a websocket and pushes every normalized event the
// feed publishes until either side goes away. Clients never send.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "live feed is not configured", getCorrelationID(r))
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logf("live feed accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	events, cancel := s.live.Subscribe(s.cfg.LiveBuffer)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed stopped")
				return
			}
			if err := writeFrame(ctx, conn, liveFrame{Event: event.Normalized, ReceivedAt: event.ReceivedAt}); err != nil {
				s.logf("live feed write failed: %v", err)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame liveFrame) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}

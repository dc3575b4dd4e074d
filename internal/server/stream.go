package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/finlens/finlens/internal/orchestrator"
)

// streamPingInterval keeps idle connections alive through proxies.
const streamPingInterval = 30 * time.Second

// StreamHandler pushes view events to websocket clients. Each client gets
// the current state on connect, then every subsequent event. Slow clients
// miss events rather than stall the pipeline; the payloads are small enough
// that clients re-sync from /api/state.
type StreamHandler struct {
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

// NewStreamHandler creates a state stream handler.
func NewStreamHandler(orch *orchestrator.Orchestrator, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		orch: orch,
		log:  log.With().Str("handler", "state_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/state/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dashboard frontends may be served from another origin in dev.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	events := h.orch.Subscribe()
	defer h.orch.Unsubscribe(events)

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Stream client connected")

	// Initial snapshot so clients render without a second request.
	if err := h.write(ctx, conn, h.orch.Current()); err != nil {
		return
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				h.log.Debug().Err(err).Msg("Stream ping failed, dropping client")
				return
			}
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, payload interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, payload); err != nil {
		h.log.Debug().Err(err).Msg("Stream write failed, dropping client")
		return err
	}
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const realtimeWriteTimeout = 5 * time.Second

// serveRealtime streams room events over a websocket. The first frame is a
// subscribed event; clients never send data frames.
func (h *httpHandler) serveRealtime(w http.ResponseWriter, r *http.Request) {
	namespace, code, errorCode := parseRoom(r.PathValue("namespace"), r.PathValue("code"))
	if errorCode != "" {
		writeJSONError(w, http.StatusBadRequest, errorCode)
		return
	}

	subscribeCtx, cancelSubscription := context.WithCancel(r.Context())
	defer cancelSubscription()
	stream, cleanup := h.realtime.Subscribe(subscribeCtx, namespace.String(), code.String())
	defer cleanup()

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(subscribeCtx)
	if err := h.writeEvent(ctx, conn, collab.RemoteEvent{Type: collab.EventSubscribed}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case message, ok := <-stream:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := h.writeEvent(ctx, conn, message.Event); err != nil {
				h.logger.Debug("realtime write failed",
					zap.String("namespace", namespace.String()),
					zap.String("room", code.String()),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, realtimeWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeJSONError(w http.ResponseWriter, status int, errorCode string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errorCode})
}

func (h *httpHandler) writeEvent(ctx context.Context, conn *websocket.Conn, event collab.RemoteEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, realtimeWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}

func (h *httpHandler) acceptOptions() *websocket.AcceptOptions {
	if len(h.allowedOrigins) == 0 || containsWildcard(h.allowedOrigins) {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(h.allowedOrigins))
	for _, origin := range h.allowedOrigins {
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Host == "" {
			patterns = append(patterns, origin)
			continue
		}
		patterns = append(patterns, parsed.Host)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

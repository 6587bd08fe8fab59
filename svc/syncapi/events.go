package syncapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/fieldsync/handler"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 512
)

// streamEvents upgrades to a websocket and pushes the lifecycle events of one
// actor until the client disconnects or falls too far behind.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		_ = handler.JSONError(errEventsDisabled).Render(w, r)
		return
	}
	actorID := chi.URLParam(r, "actorID")

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error to the client.
		a.logger.WarnContext(r.Context(), "websocket upgrade failed", logger.Error(err), logger.ActorID(actorID))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub := a.bus.Subscribe(ctx, actorID)
	defer sub.Close()

	log := a.logger.With(logger.ActorID(actorID))
	log.InfoContext(ctx, "event stream opened")
	defer log.InfoContext(ctx, "event stream closed")

	go readPump(conn, a.pingInterval, cancel)

	ping := time.NewTicker(a.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Dropped by the bus for being slow, or the bus is closing.
				closeStream(conn, websocket.CloseTryAgainLater, "event stream lagged")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.DebugContext(ctx, "event write failed", logger.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.DebugContext(ctx, "ping failed", logger.Error(err))
				return
			}
		}
	}
}

// readPump discards client frames and cancels the stream when the connection
// closes or stops answering pings.
func readPump(conn *websocket.Conn, pingInterval time.Duration, cancel context.CancelFunc) {
	defer cancel()

	pongWait := pingInterval + writeWait
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

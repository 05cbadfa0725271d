package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/topic"
)

// writeTimeout bounds each websocket frame write so one stuck client cannot
// pin the handler.
const writeTimeout = 5 * time.Second

// handleLive streams a topic over a websocket: first the buffer snapshot so
// new viewers see recent history, then live events as they are published.
// Delivery is at-most-once; events dropped while the client lags are gone.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("topic")
	tp := s.engine.Topics().Lookup(name)
	if tp == nil {
		NotFound(w, "unknown topic: "+name, r.URL.Path)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.String("topic", name), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Registering and snapshotting happen atomically, so an event published
	// while the viewer connects is primed or streamed, never both.
	id, events, history := tp.SubscribeWithSnapshot()
	defer tp.Unsubscribe(id)

	// CloseRead watches for client disconnect and cancels the context.
	ctx := conn.CloseRead(r.Context())

	for _, e := range history {
		if err := writeEvent(ctx, conn, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e topic.Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, e)
}

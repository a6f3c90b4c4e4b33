package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"swapledger/core/types"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsSubscriberCap = 256
	wsBackfillPage  = 500
)

// handleEventsWS streams committed events. A client that passes ?from=N first
// receives the logged events from N onwards, then live events.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	var from uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid from parameter", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are only needed to observe client close frames.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, from); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// streamEvents delivers every event from seq from onwards without gaps. From
// zero means live events only. When the feed evicts this connection for
// falling behind, it resubscribes and replays the missed range from the log.
func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, from uint64) error {
	next := from
	for {
		updates, cancel := s.node.Subscribe(ctx, s.streamBuffer)
		if next == 0 {
			latest, err := s.node.LatestSeq()
			if err != nil {
				cancel()
				return err
			}
			next = latest + 1
		}
		var err error
		next, err = s.backfill(ctx, conn, next)
		if err == nil {
			next, err = s.forward(ctx, conn, updates, next)
		}
		cancel()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("event stream resubscribing", slog.Uint64("next", next))
	}
}

// backfill writes logged events from next onwards and returns the sequence
// number that follows the last one written.
func (s *Server) backfill(ctx context.Context, conn *websocket.Conn, next uint64) (uint64, error) {
	for {
		page, err := s.node.Events(next, wsBackfillPage)
		if err != nil {
			return next, err
		}
		for _, evt := range page {
			if evt.Seq < next {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return next, err
			}
			next = evt.Seq + 1
		}
		if len(page) < wsBackfillPage {
			return next, nil
		}
	}
}

// forward relays live events until the subscription closes. A sequence gap is
// repaired from the log before anything newer is written.
func (s *Server) forward(ctx context.Context, conn *websocket.Conn, updates <-chan types.LoggedEvent, next uint64) (uint64, error) {
	for {
		select {
		case <-ctx.Done():
			return next, ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return next, nil
			}
			if evt.Seq < next {
				continue
			}
			if evt.Seq > next {
				var err error
				if next, err = s.backfill(ctx, conn, next); err != nil {
					return next, err
				}
				if evt.Seq < next {
					continue
				}
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return next, err
			}
			next = evt.Seq + 1
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt types.LoggedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

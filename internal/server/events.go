/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/belfry/internal/events"
)

const eventPingInterval = 15 * time.Second

type eventMessage struct {
	Type    string         `json:"type"`
	Payload events.Payload `json:"payload,omitempty"`
}

// handleEvents streams bus events over a websocket. The optional "types"
// query parameter is a comma separated list of event types to receive.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	filter := parseEventTypes(r.URL.Query().Get("types"))
	sub := s.deps.Bus.Subscribe(events.EventAll)
	defer s.deps.Bus.Unsubscribe(events.EventAll, sub)

	// Reads are only needed to observe the client closing the connection.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := s.writeEvent(ctx, conn, eventMessage{Type: "ping"}); err != nil {
				return
			}
		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusGoingAway, "event bus closed")
				return
			}
			eventType, _ := payload["event"].(string)
			if len(filter) > 0 && !filter[eventType] {
				continue
			}
			if err := s.writeEvent(ctx, conn, eventMessage{Type: eventType, Payload: payload}); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *ws.Conn, msg eventMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		s.logger.Debug().Err(err).Msg("websocket write failed")
		return err
	}
	return nil
}

func parseEventTypes(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out[part] = true
		}
	}
	return out
}

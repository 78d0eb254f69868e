// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graphsync

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// subscriberBacklog bounds how far a slow websocket reader may lag before
// the hub drops it rather than block event application on it.
const subscriberBacklog = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans out applied events to any number of websocket subscribers. It
// never blocks the single consumer goroutine that owns event application:
// a subscriber whose outbound channel is full is disconnected instead.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Applied]struct{}
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{subs: make(map[chan Applied]struct{}), logger: logger}
}

func (h *hub) subscribe() chan Applied {
	ch := make(chan Applied, subscriberBacklog)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan Applied) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) broadcast(ev Applied) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("graphsync: dropping slow event-stream subscriber")
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams Applied
// events to it in broadcast (= application) order until the connection
// closes. Mount at GET /v1/events/stream.
func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("graphsync: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Drain inbound control frames (pings/close) on a separate goroutine
	// so the connection's read deadline is serviced even though this
	// handler never expects application-level messages from the client.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("graphsync: marshal applied event failed", slog.String("error", err.Error()))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

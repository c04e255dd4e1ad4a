package sse

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// Time between keepalive pings
	pingPeriod = 30 * time.Second

	// Buffer size for outgoing messages
	sendBufferSize = 64
)

// Client represents a connected SSE client
type Client struct {
	hub         *Hub
	id          string
	send        chan []byte
	connectedAt time.Time
}

// NewClient creates a new SSE client
func NewClient(hub *Hub, id string) *Client {
	return &Client{
		hub:         hub,
		id:          id,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
	}
}

// ServeSSE handles the SSE connection for a client. initial, if not nil, is
// called once the client is registered and its message is written before
// any broadcast, so a broadcast racing the connection is never lost.
func ServeSSE(w http.ResponseWriter, r *http.Request, hub *Hub, id string, initial func() ([]byte, error)) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := NewClient(hub, id)
	if !hub.Register(client) {
		http.Error(w, "Event hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	if initial != nil {
		msg, err := initial()
		if err != nil {
			hub.logger.Error("sse failed to build initial message",
				slog.String("client_id", id),
				slog.Any("error", err))
			http.Error(w, "Failed to build initial event", http.StatusInternalServerError)
			return
		}
		if _, err := w.Write(msg); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				// Hub closed the channel
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// Send keepalive comment
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

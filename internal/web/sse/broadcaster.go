package sse

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mcoot/relsync/internal/model"
)

// StateEvent is the SSE event name carrying a state snapshot
const StateEvent = "state"

// StateSource publishes committed state snapshots
type StateSource interface {
	Subscribe() (<-chan model.StateSnapshot, func())
}

// Broadcaster forwards state snapshots to the hub's clients
type Broadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hub *Hub, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		logger: logger.With(slog.String("component", "sse-broadcaster")),
	}
}

// Run broadcasts every snapshot src publishes until ctx is cancelled
func (b *Broadcaster) Run(ctx context.Context, src StateSource) {
	states, cancel := src.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-states:
			if !ok {
				return
			}
			b.BroadcastState(snap)
		}
	}
}

// BroadcastState sends one snapshot to every client
func (b *Broadcaster) BroadcastState(snap model.StateSnapshot) {
	msg, err := StateMessage(snap)
	if err != nil {
		b.logger.Error("sse failed to encode state",
			slog.Uint64("version", snap.Version),
			slog.Any("error", err))
		return
	}
	b.hub.Broadcast(msg)
}

// StateMessage encodes snap as a complete SSE state event
func StateMessage(snap model.StateSnapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return FormatEvent(StateEvent, string(data)), nil
}

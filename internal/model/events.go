package model

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of a push event
type EventType string

const (
	EventSelfUpdated      EventType = "self/updated"
	EventRequestReceived  EventType = "relationship/requestReceived"
	EventRequestAccepted  EventType = "relationship/requestAccepted"
	EventRequestRejected  EventType = "relationship/requestRejected"
	EventRequestCancelled EventType = "relationship/requestCancelled"
	EventRemoved          EventType = "relationship/removed"
)

// EventTypes lists every push event kind the engine consumes
var EventTypes = []EventType{
	EventSelfUpdated,
	EventRequestReceived,
	EventRequestAccepted,
	EventRequestRejected,
	EventRequestCancelled,
	EventRemoved,
}

// Event is a validated push event. Relationship events carry Peer; a
// self update carries Self.
type Event struct {
	Type EventType
	Peer PeerID
	Self *SelfUpdate
}

// RequestReceived builds an incoming-request event
func RequestReceived(from PeerID) Event {
	return Event{Type: EventRequestReceived, Peer: from}
}

// RequestAccepted builds a request-accepted event
func RequestAccepted(from PeerID) Event {
	return Event{Type: EventRequestAccepted, Peer: from}
}

// RequestRejected builds a request-rejected event
func RequestRejected(from PeerID) Event {
	return Event{Type: EventRequestRejected, Peer: from}
}

// RequestCancelled builds a request-cancelled event
func RequestCancelled(from PeerID) Event {
	return Event{Type: EventRequestCancelled, Peer: from}
}

// Removed builds a friend-removed event
func Removed(from PeerID) Event {
	return Event{Type: EventRemoved, Peer: from}
}

// SelfUpdated builds a self-profile event
func SelfUpdated(update SelfUpdate) Event {
	return Event{Type: EventSelfUpdated, Self: &update}
}

type relationshipPayload struct {
	From *PeerID `json:"from"`
}

type selfPayload struct {
	User *SelfUpdate `json:"user"`
}

// ParseEvent validates a raw push payload of the given kind. Payloads that
// lack required fields or do not decode return ErrMalformedEvent.
func ParseEvent(kind EventType, payload json.RawMessage) (Event, error) {
	switch kind {
	case EventSelfUpdated:
		var p selfPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, kind, err)
		}
		if p.User == nil {
			return Event{}, fmt.Errorf("%w: %s: missing user", ErrMalformedEvent, kind)
		}
		return Event{Type: kind, Self: p.User}, nil

	case EventRequestReceived, EventRequestAccepted, EventRequestRejected,
		EventRequestCancelled, EventRemoved:
		var p relationshipPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, kind, err)
		}
		if p.From == nil {
			return Event{}, fmt.Errorf("%w: %s: missing from", ErrMalformedEvent, kind)
		}
		return Event{Type: kind, Peer: *p.From}, nil

	default:
		return Event{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, kind)
	}
}

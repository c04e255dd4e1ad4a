package model

import (
	"bytes"
	"encoding/json"
)

// Field is an optional value that records whether it was present in a
// decoded payload. A JSON null counts as present with the zero value.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Field holding v
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// UnmarshalJSON marks the field present and decodes its value
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.Value = zero
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// SelfUpdate is a partial self profile pushed by the remote service. Only
// fields that are Set are merged.
type SelfUpdate struct {
	ID              Field[PeerID]          `json:"userId"`
	Username        Field[string]          `json:"username"`
	DisplayName     Field[string]          `json:"displayName"`
	ClanID          Field[*string]         `json:"clanId"`
	PartyID         Field[*string]         `json:"partyId"`
	CountryCode     Field[string]          `json:"countryCode"`
	Status          Field[string]          `json:"status"`
	Permissions     Field[[]string]        `json:"permissions"`
	BattleRoomState Field[BattleRoomState] `json:"battleRoomState"`
	Friends         Field[[]PeerID]        `json:"friendIds"`
	Outgoing        Field[[]PeerID]        `json:"outgoingFriendRequestIds"`
	Incoming        Field[[]PeerID]        `json:"incomingFriendRequestIds"`
	Ignored         Field[[]PeerID]        `json:"ignoreIds"`
}

// TouchesRelationships reports whether the update carries any of the three
// relationship lists
func (u *SelfUpdate) TouchesRelationships() bool {
	return u.Friends.Set || u.Outgoing.Set || u.Incoming.Set
}

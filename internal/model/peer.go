package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// PeerID identifies a remote account
type PeerID int64

// ParsePeerID parses a decimal peer id
func ParsePeerID(s string) (PeerID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid peer id %q: %w", s, err)
	}
	return PeerID(v), nil
}

func (id PeerID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts both numeric and string encodings, since the remote
// service sends ids as decimal strings.
func (id *PeerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParsePeerID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid peer id %s: %w", string(data), err)
	}
	*id = PeerID(v)
	return nil
}

// PeerSet is an unordered set of peer ids
type PeerSet map[PeerID]struct{}

// NewPeerSet builds a set from the given ids
func NewPeerSet(ids ...PeerID) PeerSet {
	s := make(PeerSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was absent
func (s PeerSet) Add(id PeerID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present
func (s PeerSet) Remove(id PeerID) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Has reports whether id is in the set
func (s PeerSet) Has(id PeerID) bool {
	_, ok := s[id]
	return ok
}

// Clear removes every member while keeping the same map
func (s PeerSet) Clear() {
	clear(s)
}

// Clone returns an independent copy
func (s PeerSet) Clone() PeerSet {
	out := make(PeerSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Slice returns the members in ascending order
func (s PeerSet) Slice() []PeerID {
	out := make([]PeerID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Equal reports whether both sets hold the same members
func (s PeerSet) Equal(other PeerSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array
func (s PeerSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of ids
func (s *PeerSet) UnmarshalJSON(data []byte) error {
	var ids []PeerID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewPeerSet(ids...)
	return nil
}

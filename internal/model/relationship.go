package model

// RelationshipKind names one of the three exclusive relationship sets
type RelationshipKind string

const (
	KindNone     RelationshipKind = ""
	KindFriend   RelationshipKind = "friend"
	KindOutgoing RelationshipKind = "outgoing"
	KindIncoming RelationshipKind = "incoming"
)

// RelationshipSet holds the local identity's friends and pending requests.
// A peer is a member of at most one of the three sets at any time.
type RelationshipSet struct {
	Friends  PeerSet `json:"friends"`
	Outgoing PeerSet `json:"outgoing"`
	Incoming PeerSet `json:"incoming"`
}

// NewRelationshipSet creates an empty RelationshipSet
func NewRelationshipSet() *RelationshipSet {
	return &RelationshipSet{
		Friends:  NewPeerSet(),
		Outgoing: NewPeerSet(),
		Incoming: NewPeerSet(),
	}
}

// KindOf returns the set id currently belongs to
func (r *RelationshipSet) KindOf(id PeerID) RelationshipKind {
	switch {
	case r.Friends.Has(id):
		return KindFriend
	case r.Outgoing.Has(id):
		return KindOutgoing
	case r.Incoming.Has(id):
		return KindIncoming
	default:
		return KindNone
	}
}

// Move places id into the set for kind, removing it from any other set
// first. KindNone removes it everywhere. Reports whether membership changed.
func (r *RelationshipSet) Move(id PeerID, kind RelationshipKind) bool {
	if r.KindOf(id) == kind {
		return false
	}
	r.Friends.Remove(id)
	r.Outgoing.Remove(id)
	r.Incoming.Remove(id)

	switch kind {
	case KindFriend:
		r.Friends.Add(id)
	case KindOutgoing:
		r.Outgoing.Add(id)
	case KindIncoming:
		r.Incoming.Add(id)
	}
	return true
}

// RemoveFrom removes id from the set for kind only
func (r *RelationshipSet) RemoveFrom(id PeerID, kind RelationshipKind) bool {
	switch kind {
	case KindFriend:
		return r.Friends.Remove(id)
	case KindOutgoing:
		return r.Outgoing.Remove(id)
	case KindIncoming:
		return r.Incoming.Remove(id)
	}
	return false
}

// Replace repopulates the sets in place from a snapshot. Incoming is applied
// first and friends last, so a peer the remote lists more than once ends up
// in its most advanced state.
func (r *RelationshipSet) Replace(snapshot RelationshipSnapshot) {
	r.Friends.Clear()
	r.Outgoing.Clear()
	r.Incoming.Clear()

	for _, id := range snapshot.Incoming {
		r.Move(id, KindIncoming)
	}
	for _, id := range snapshot.Outgoing {
		r.Move(id, KindOutgoing)
	}
	for _, id := range snapshot.Friends {
		r.Move(id, KindFriend)
	}
}

// All returns the union of the three sets
func (r *RelationshipSet) All() PeerSet {
	out := make(PeerSet, len(r.Friends)+len(r.Outgoing)+len(r.Incoming))
	for _, s := range []PeerSet{r.Friends, r.Outgoing, r.Incoming} {
		for id := range s {
			out[id] = struct{}{}
		}
	}
	return out
}

// Clone returns a deep copy
func (r *RelationshipSet) Clone() *RelationshipSet {
	return &RelationshipSet{
		Friends:  r.Friends.Clone(),
		Outgoing: r.Outgoing.Clone(),
		Incoming: r.Incoming.Clone(),
	}
}

// Equal reports whether both relationship sets have identical members
func (r *RelationshipSet) Equal(other *RelationshipSet) bool {
	return r.Friends.Equal(other.Friends) &&
		r.Outgoing.Equal(other.Outgoing) &&
		r.Incoming.Equal(other.Incoming)
}

// RelationshipSnapshot is the authoritative relationship listing returned by
// the remote service
type RelationshipSnapshot struct {
	Friends  []PeerID
	Outgoing []PeerID
	Incoming []PeerID
}

// Peers returns the union of every peer in the snapshot
func (s RelationshipSnapshot) Peers() PeerSet {
	out := NewPeerSet(s.Friends...)
	for _, id := range s.Outgoing {
		out.Add(id)
	}
	for _, id := range s.Incoming {
		out.Add(id)
	}
	return out
}

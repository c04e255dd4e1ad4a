// Package relationship applies push events to the local identity's
// relationship sets and self profile.
package relationship

import (
	"log/slog"
	"slices"

	"github.com/mcoot/relsync/internal/model"
)

// Result describes the outcome of applying one event
type Result struct {
	// Relevant holds peers that should have a push-update subscription
	Relevant model.PeerSet
	// Changed is false when the event was a no-op
	Changed bool
}

// Machine applies relationship events. Every transition is idempotent:
// replaying an event, or applying one whose precondition no longer holds,
// leaves the set as it is.
type Machine struct {
	logger *slog.Logger
}

// New creates a new Machine
func New(logger *slog.Logger) *Machine {
	return &Machine{logger: logger.With(slog.String("component", "relationships"))}
}

// Apply mutates set according to ev. Self updates are not relationship
// events and produce an empty Result; use MergeSelf for those.
func (m *Machine) Apply(set *model.RelationshipSet, ev model.Event) Result {
	res := Result{Relevant: model.NewPeerSet()}

	switch ev.Type {
	case model.EventRequestReceived:
		res.Changed = set.Move(ev.Peer, model.KindIncoming)
		res.Relevant.Add(ev.Peer)
	case model.EventRequestAccepted:
		res.Changed = set.Move(ev.Peer, model.KindFriend)
		res.Relevant.Add(ev.Peer)
	case model.EventRequestRejected:
		res.Changed = set.RemoveFrom(ev.Peer, model.KindIncoming)
	case model.EventRequestCancelled:
		res.Changed = set.RemoveFrom(ev.Peer, model.KindOutgoing)
	case model.EventRemoved:
		res.Changed = set.RemoveFrom(ev.Peer, model.KindFriend)
	default:
		return res
	}

	m.logger.Debug("relationship event applied",
		slog.String("event", string(ev.Type)),
		slog.Int64("peer_id", int64(ev.Peer)),
		slog.Bool("changed", res.Changed),
	)
	return res
}

// MergeSelf overwrites the fields of self that update carries. Relationship
// lists that are present replace the matching set in place; lists that are
// absent keep their locally tracked contents. Peers named by a present list
// are returned as relevant.
func (m *Machine) MergeSelf(self *model.SelfProfile, update *model.SelfUpdate) Result {
	before := self.Clone()
	res := Result{Relevant: model.NewPeerSet()}

	if update.ID.Set {
		self.ID = update.ID.Value
	}
	if update.Username.Set {
		self.Username = update.Username.Value
	}
	if update.DisplayName.Set {
		self.DisplayName = update.DisplayName.Value
	}
	if update.ClanID.Set {
		self.ClanID = update.ClanID.Value
	}
	if update.PartyID.Set {
		self.PartyID = update.PartyID.Value
	}
	if update.CountryCode.Set {
		self.CountryCode = update.CountryCode.Value
	}
	if update.Status.Set {
		self.Status = update.Status.Value
	}
	if update.Permissions.Set {
		self.SetPermissions(update.Permissions.Value)
	}
	if update.BattleRoomState.Set {
		self.BattleRoomState = update.BattleRoomState.Value
	}
	if update.Ignored.Set {
		self.Ignored.Clear()
		for _, id := range update.Ignored.Value {
			self.Ignored.Add(id)
		}
	}

	if update.TouchesRelationships() {
		rel := self.Relationships
		snapshot := model.RelationshipSnapshot{
			Friends:  rel.Friends.Slice(),
			Outgoing: rel.Outgoing.Slice(),
			Incoming: rel.Incoming.Slice(),
		}
		if update.Friends.Set {
			snapshot.Friends = update.Friends.Value
		}
		if update.Outgoing.Set {
			snapshot.Outgoing = update.Outgoing.Value
		}
		if update.Incoming.Set {
			snapshot.Incoming = update.Incoming.Value
		}
		rel.Replace(snapshot)

		for _, list := range [][]model.PeerID{update.Friends.Value, update.Outgoing.Value, update.Incoming.Value} {
			for _, id := range list {
				res.Relevant.Add(id)
			}
		}
	}

	res.Changed = !sameSelf(before, self)
	return res
}

func sameSelf(a, b *model.SelfProfile) bool {
	return a.ID == b.ID &&
		a.Username == b.Username &&
		a.DisplayName == b.DisplayName &&
		equalString(a.ClanID, b.ClanID) &&
		equalString(a.PartyID, b.PartyID) &&
		a.CountryCode == b.CountryCode &&
		a.Status == b.Status &&
		slices.Equal(a.Permissions, b.Permissions) &&
		a.BattleRoomState == b.BattleRoomState &&
		a.Ignored.Equal(b.Ignored) &&
		a.Relationships.Equal(b.Relationships)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

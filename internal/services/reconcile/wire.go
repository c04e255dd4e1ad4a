package reconcile

import (
	"fmt"

	"github.com/mcoot/relsync/internal/model"
)

// listResponse is the data of a relationship/list response. Entry ids are
// pointers so an entry without one is rejected rather than read as peer 0.
type listResponse struct {
	Friends []struct {
		UserID *model.PeerID `json:"userId"`
	} `json:"friends"`
	Outgoing []struct {
		To *model.PeerID `json:"to"`
	} `json:"outgoingPendingRequests"`
	Incoming []struct {
		From *model.PeerID `json:"from"`
	} `json:"incomingPendingRequests"`
}

func (r *listResponse) snapshot() (model.RelationshipSnapshot, error) {
	out := model.RelationshipSnapshot{
		Friends:  make([]model.PeerID, 0, len(r.Friends)),
		Outgoing: make([]model.PeerID, 0, len(r.Outgoing)),
		Incoming: make([]model.PeerID, 0, len(r.Incoming)),
	}
	for i, f := range r.Friends {
		if f.UserID == nil {
			return out, fmt.Errorf("friends[%d] has no userId", i)
		}
		out.Friends = append(out.Friends, *f.UserID)
	}
	for i, o := range r.Outgoing {
		if o.To == nil {
			return out, fmt.Errorf("outgoingPendingRequests[%d] has no to", i)
		}
		out.Outgoing = append(out.Outgoing, *o.To)
	}
	for i, in := range r.Incoming {
		if in.From == nil {
			return out, fmt.Errorf("incomingPendingRequests[%d] has no from", i)
		}
		out.Incoming = append(out.Incoming, *in.From)
	}
	return out, nil
}

type infoParams struct {
	UserID string `json:"userId"`
}

// infoResponse is the data of a peer/info response. Pointer fields are
// optional on the wire.
type infoResponse struct {
	ID              *model.PeerID          `json:"userId"`
	Username        string                 `json:"username"`
	DisplayName     string                 `json:"displayName"`
	ClanID          *string                `json:"clanId"`
	CountryCode     string                 `json:"countryCode"`
	Status          string                 `json:"status"`
	BattleRoomState *model.BattleRoomState `json:"battleRoomState"`
}

// profile converts a fetch result into the cached record for id, applying
// the defaults for fields the remote left out. Party membership is never
// taken from a fetch.
func (r *infoResponse) profile(id model.PeerID) *model.PeerProfile {
	p := &model.PeerProfile{
		ID:          id,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		ClanID:      r.ClanID,
		CountryCode: r.CountryCode,
		Status:      r.Status,
	}
	if p.CountryCode == "" {
		p.CountryCode = model.FallbackCountryCode
	}
	if p.Status == "" {
		p.Status = model.StatusOffline
	}
	if r.BattleRoomState != nil {
		p.BattleRoomState = *r.BattleRoomState
	}
	return p
}

package response

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/services/reconcile"
)

// Health is the response for the health endpoint
type Health struct {
	Status        string `json:"status"`
	Initialized   bool   `json:"initialized"`
	Authenticated bool   `json:"authenticated"`
}

// Relationships lists the relationship sets as sorted ids
type Relationships struct {
	Friends  []model.PeerID `json:"friends"`
	Outgoing []model.PeerID `json:"outgoing"`
	Incoming []model.PeerID `json:"incoming"`
	Version  uint64         `json:"version"`
}

// RelationshipsFromSnapshot converts a state snapshot
func RelationshipsFromSnapshot(s model.StateSnapshot) Relationships {
	rel := s.Self.Relationships
	return Relationships{
		Friends:  rel.Friends.Slice(),
		Outgoing: rel.Outgoing.Slice(),
		Incoming: rel.Incoming.Slice(),
		Version:  s.Version,
	}
}

// Reconcile is the response for a completed reconciliation
type Reconcile struct {
	Peers   int            `json:"peers"`
	Fetched int            `json:"fetched"`
	Failed  []model.PeerID `json:"failed"`
}

// ReconcileFromReport converts a reconcile.Report
func ReconcileFromReport(r *reconcile.Report) Reconcile {
	return Reconcile{Peers: r.Peers, Fetched: r.Fetched, Failed: r.Failed}
}

// Session reports the authentication state after a session operation
type Session struct {
	Authenticated bool `json:"authenticated"`
}

// JSON writes data as a JSON response. Responses describe live engine
// state and are never cached.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

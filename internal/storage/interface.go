package storage

import (
	"context"

	"github.com/mcoot/relsync/internal/model"
)

// ProfileCache is durable keyed storage for peer profiles and the record
// marked as the local identity
type ProfileCache interface {
	// Peer operations
	PutProfile(ctx context.Context, profile *model.PeerProfile) error
	GetProfile(ctx context.Context, id model.PeerID) (*model.PeerProfile, error)

	// Self marker operations
	GetSelf(ctx context.Context) (*model.PeerProfile, error)
	ClearSelfMarker(ctx context.Context, id model.PeerID) error
	PutSelf(ctx context.Context, profile *model.PeerProfile) error
}

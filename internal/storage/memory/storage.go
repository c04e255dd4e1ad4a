package memory

import (
	"context"
	"sync"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage"
)

// Storage is an in-memory implementation of the profile cache
type Storage struct {
	mu sync.RWMutex

	profiles map[model.PeerID]model.PeerProfile
	selfID   *model.PeerID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		profiles: make(map[model.PeerID]model.PeerProfile),
	}
}

// Ensure Storage implements the interface
var _ storage.ProfileCache = (*Storage)(nil)

// Peer operations

// PutProfile upserts a peer record. Writing a record for the id currently
// marked as self keeps the marker and, unless the new record carries one,
// the stored self block.
func (s *Storage) PutProfile(ctx context.Context, profile *model.PeerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := copyProfile(profile)
	rec.IsMe = s.selfID != nil && *s.selfID == rec.ID
	if rec.IsMe && rec.Self == nil {
		rec.Self = s.profiles[rec.ID].Self
	}
	s.profiles[rec.ID] = rec
	return nil
}

func (s *Storage) GetProfile(ctx context.Context, id model.PeerID) (*model.PeerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.profiles[id]
	if !ok {
		return nil, model.ErrPeerNotFound
	}
	out := copyProfile(&rec)
	return &out, nil
}

// Self marker operations

func (s *Storage) GetSelf(ctx context.Context) (*model.PeerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selfID == nil {
		return nil, model.ErrSelfNotFound
	}
	rec, ok := s.profiles[*s.selfID]
	if !ok {
		return nil, model.ErrSelfNotFound
	}
	out := copyProfile(&rec)
	return &out, nil
}

func (s *Storage) ClearSelfMarker(ctx context.Context, id model.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.profiles[id]; ok {
		rec.IsMe = false
		s.profiles[id] = rec
	}
	if s.selfID != nil && *s.selfID == id {
		s.selfID = nil
	}
	return nil
}

func (s *Storage) PutSelf(ctx context.Context, profile *model.PeerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selfID != nil && *s.selfID != profile.ID {
		if prev, ok := s.profiles[*s.selfID]; ok {
			prev.IsMe = false
			s.profiles[prev.ID] = prev
		}
	}

	rec := copyProfile(profile)
	rec.IsMe = true
	s.profiles[rec.ID] = rec
	id := rec.ID
	s.selfID = &id
	return nil
}

// Len returns the number of cached records
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// copyProfile detaches the record from caller-owned pointers
func copyProfile(p *model.PeerProfile) model.PeerProfile {
	out := *p
	if p.ClanID != nil {
		v := *p.ClanID
		out.ClanID = &v
	}
	if p.PartyID != nil {
		v := *p.PartyID
		out.PartyID = &v
	}
	if p.Self != nil {
		self := *p.Self
		self.Permissions = append([]string(nil), p.Self.Permissions...)
		self.Friends = append([]model.PeerID(nil), p.Self.Friends...)
		self.Outgoing = append([]model.PeerID(nil), p.Self.Outgoing...)
		self.Incoming = append([]model.PeerID(nil), p.Self.Incoming...)
		self.Ignored = append([]model.PeerID(nil), p.Self.Ignored...)
		out.Self = &self
	}
	return out
}

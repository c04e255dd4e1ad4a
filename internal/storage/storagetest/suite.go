// Package storagetest holds behaviour tests shared by every ProfileCache
// backend.
package storagetest

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage"
)

// CacheSuite exercises a ProfileCache. Backends embed it and set Cache in
// their SetupTest.
type CacheSuite struct {
	suite.Suite
	Cache storage.ProfileCache
	Ctx   context.Context
}

// PeerRecord builds a plain peer record
func (s *CacheSuite) PeerRecord(id model.PeerID, name string) *model.PeerProfile {
	return &model.PeerProfile{
		ID:          id,
		Username:    name,
		DisplayName: name,
		CountryCode: "NZ",
		Status:      "menu",
	}
}

// SelfRecord builds a self record with one friend and one incoming request
func (s *CacheSuite) SelfRecord(id model.PeerID) *model.PeerProfile {
	p := model.NewSelfProfile()
	p.ID = id
	p.DisplayName = "Me"
	p.Relationships.Move(7, model.KindFriend)
	p.Relationships.Move(9, model.KindIncoming)
	return p.Record()
}

func (s *CacheSuite) TestPutAndGetProfile() {
	err := s.Cache.PutProfile(s.Ctx, s.PeerRecord(1, "alice"))
	s.Require().NoError(err)

	got, err := s.Cache.GetProfile(s.Ctx, 1)
	s.Require().NoError(err)
	s.Equal("alice", got.Username)
	s.Equal("NZ", got.CountryCode)
	s.False(got.IsMe)
}

func (s *CacheSuite) TestPutProfileOverwrites() {
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, s.PeerRecord(1, "alice")))
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, s.PeerRecord(1, "alicia")))

	got, err := s.Cache.GetProfile(s.Ctx, 1)
	s.Require().NoError(err)
	s.Equal("alicia", got.Username)
}

func (s *CacheSuite) TestGetProfileNotFound() {
	_, err := s.Cache.GetProfile(s.Ctx, 404)
	s.ErrorIs(err, model.ErrPeerNotFound)
}

func (s *CacheSuite) TestGetSelfNotFound() {
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, s.PeerRecord(1, "alice")))

	_, err := s.Cache.GetSelf(s.Ctx)
	s.ErrorIs(err, model.ErrSelfNotFound)
}

func (s *CacheSuite) TestPutSelfMarksRecord() {
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(5)))

	got, err := s.Cache.GetSelf(s.Ctx)
	s.Require().NoError(err)
	s.Equal(model.PeerID(5), got.ID)
	s.True(got.IsMe)
	s.Require().NotNil(got.Self)
	s.Equal([]model.PeerID{7}, got.Self.Friends)
	s.Equal([]model.PeerID{9}, got.Self.Incoming)
}

func (s *CacheSuite) TestPutSelfMovesMarker() {
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(5)))
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(6)))

	got, err := s.Cache.GetSelf(s.Ctx)
	s.Require().NoError(err)
	s.Equal(model.PeerID(6), got.ID)

	old, err := s.Cache.GetProfile(s.Ctx, 5)
	s.Require().NoError(err)
	s.False(old.IsMe)
}

func (s *CacheSuite) TestClearSelfMarker() {
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(5)))
	s.Require().NoError(s.Cache.ClearSelfMarker(s.Ctx, 5))

	_, err := s.Cache.GetSelf(s.Ctx)
	s.ErrorIs(err, model.ErrSelfNotFound)

	rec, err := s.Cache.GetProfile(s.Ctx, 5)
	s.Require().NoError(err)
	s.False(rec.IsMe)
}

func (s *CacheSuite) TestClearSelfMarkerOnUnknownRecord() {
	s.NoError(s.Cache.ClearSelfMarker(s.Ctx, 404))
}

func (s *CacheSuite) TestPutProfileKeepsSelfMarker() {
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(5)))
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, s.PeerRecord(5, "me-again")))

	got, err := s.Cache.GetSelf(s.Ctx)
	s.Require().NoError(err)
	s.Equal("me-again", got.Username)
	s.True(got.IsMe)
}

func (s *CacheSuite) TestPutProfileKeepsSelfDetail() {
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(5)))
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, s.PeerRecord(5, "me-again")))

	got, err := s.Cache.GetSelf(s.Ctx)
	s.Require().NoError(err)
	s.Require().NotNil(got.Self)
	s.Equal([]model.PeerID{7}, got.Self.Friends)
	s.Equal([]model.PeerID{9}, got.Self.Incoming)

	self := model.NewSelfProfile()
	self.Hydrate(got)
	s.True(self.Relationships.Friends.Has(7))
	s.True(self.Relationships.Incoming.Has(9))
}

func (s *CacheSuite) TestPutProfileOnUnmarkedRecordHasNoSelfDetail() {
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(5)))
	s.Require().NoError(s.Cache.PutSelf(s.Ctx, s.SelfRecord(6)))
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, s.PeerRecord(5, "former")))

	got, err := s.Cache.GetProfile(s.Ctx, 5)
	s.Require().NoError(err)
	s.False(got.IsMe)
	s.Nil(got.Self)
}

func (s *CacheSuite) TestReturnedRecordsAreDetached() {
	clan := "ABC"
	p := s.PeerRecord(1, "alice")
	p.ClanID = &clan
	s.Require().NoError(s.Cache.PutProfile(s.Ctx, p))

	clan = "XYZ"
	got, err := s.Cache.GetProfile(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().NotNil(got.ClanID)
	s.Equal("ABC", *got.ClanID)
}

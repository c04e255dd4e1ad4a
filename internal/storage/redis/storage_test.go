package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.CacheSuite
	mini    *miniredis.Miniredis
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	cfg := DefaultConfig()
	cfg.ProfileTTL = time.Hour

	s.storage = NewWithClient(client, cfg)
	s.Cache = s.storage
	s.Ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestPeerRecordsExpireButSelfDoesNot() {
	s.Require().NoError(s.storage.PutProfile(s.Ctx, s.PeerRecord(1, "alice")))
	s.Require().NoError(s.storage.PutSelf(s.Ctx, s.SelfRecord(5)))

	s.True(s.mini.TTL(profileKey(1)) > 0, "peer record should have TTL")
	s.Equal(time.Duration(0), s.mini.TTL(profileKey(5)), "self record should not have TTL")
	s.Equal(time.Duration(0), s.mini.TTL(selfMarkerKey()))
}

func (s *StorageSuite) TestSelfMarkerKeyHoldsID() {
	s.Require().NoError(s.storage.PutSelf(s.Ctx, s.SelfRecord(5)))

	raw, err := s.mini.Get(selfMarkerKey())
	s.Require().NoError(err)
	s.Equal("5", raw)
}

func (s *StorageSuite) TestGetSelfWithDanglingMarker() {
	s.Require().NoError(s.mini.Set(selfMarkerKey(), "77"))

	_, err := s.storage.GetSelf(s.Ctx)
	s.ErrorIs(err, model.ErrSelfNotFound)
}

func (s *StorageSuite) TestOperationsFailWhenServerDown() {
	s.mini.Close()

	err := s.storage.PutProfile(s.Ctx, s.PeerRecord(1, "alice"))
	s.Error(err)

	_, err = s.storage.GetSelf(s.Ctx)
	s.Error(err)
	s.NotErrorIs(err, model.ErrSelfNotFound)
}

func TestKeys(t *testing.T) {
	if got := profileKey(42); got != "relsync:profile:42" {
		t.Errorf("profileKey(42) = %q", got)
	}
	if got := selfMarkerKey(); got != "relsync:self" {
		t.Errorf("selfMarkerKey() = %q", got)
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.CacheSuite
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	st, err := Open(filepath.Join(s.T().TempDir(), "profiles.db"))
	s.Require().NoError(err)
	s.storage = st
	s.Cache = st
	s.Ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *StorageSuite) TestOnlyOneRowIsMarked() {
	s.Require().NoError(s.storage.PutSelf(s.Ctx, s.SelfRecord(5)))
	s.Require().NoError(s.storage.PutSelf(s.Ctx, s.SelfRecord(6)))
	s.Require().NoError(s.storage.PutSelf(s.Ctx, s.SelfRecord(6)))

	var count int
	err := s.storage.db.QueryRow(`SELECT COUNT(*) FROM profiles WHERE is_me = 1`).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.PutSelf(ctx, &model.PeerProfile{ID: 3, Username: "me"}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetSelf(ctx)
	require.NoError(t, err)
	require.Equal(t, model.PeerID(3), got.ID)
	require.True(t, got.IsMe)
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

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
	s.storage = New()
	s.Cache = s.storage
	s.Ctx = context.Background()
}

func (s *StorageSuite) TestLenCountsRecords() {
	s.Require().NoError(s.storage.PutProfile(s.Ctx, s.PeerRecord(1, "alice")))
	s.Require().NoError(s.storage.PutProfile(s.Ctx, s.PeerRecord(2, "bob")))
	s.Equal(2, s.storage.Len())
}

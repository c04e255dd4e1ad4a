package factory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relsync/internal/engine"
	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/services/auth"
	"github.com/mcoot/relsync/internal/storage/memory"
	"github.com/mcoot/relsync/internal/storage/sqlite"
	"github.com/mcoot/relsync/internal/testutil"
	"github.com/mcoot/relsync/internal/transport"
	"github.com/mcoot/relsync/internal/transport/transporttest"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) peerInfoByID() {
	s.app.Remote.Handle(transport.MethodPeerInfo, func(params json.RawMessage) (any, error) {
		var p struct {
			UserID string `json:"userId"`
		}
		_ = json.Unmarshal(params, &p)
		return map[string]any{"userId": p.UserID, "username": "user" + p.UserID}, nil
	})
}

// Test: login, reconcile, then incremental events on top of the snapshot
func (s *IntegrationSuite) TestSessionFlow() {
	s.Require().NoError(s.app.Tokens.Save("tok"))
	s.app.Remote.Reply(transport.MethodLogin, map[string]any{"userId": "1"})
	s.app.Remote.Reply(transport.MethodRelationshipList, map[string]any{
		"friends":                 []map[string]string{{"userId": "7"}},
		"outgoingPendingRequests": []map[string]string{{"to": "8"}},
		"incomingPendingRequests": []map[string]string{},
	})
	s.peerInfoByID()

	// Step 1: Init logs in
	s.Require().NoError(s.app.Engine.Init(s.ctx))
	s.True(s.app.Engine.Authenticated())

	// Step 2: Reconcile
	report, err := s.app.Engine.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Fetched)

	// Step 3: The outgoing request is accepted and a new one arrives
	s.app.Remote.Emit(s.ctx, string(model.EventRequestAccepted), map[string]string{"from": "8"})
	s.app.Remote.Emit(s.ctx, string(model.EventRequestReceived), map[string]string{"from": "9"})

	rel := s.app.Engine.Self().Relationships
	s.Equal([]model.PeerID{7, 8}, rel.Friends.Slice())
	s.Empty(rel.Outgoing)
	s.Equal([]model.PeerID{9}, rel.Incoming.Slice())

	// Step 4: A self update is persisted as the marked record
	s.app.Remote.Emit(s.ctx, string(model.EventSelfUpdated), map[string]any{
		"user": map[string]any{"userId": "1", "username": "me"},
	})
	rec, err := s.app.Memory.GetSelf(s.ctx)
	s.Require().NoError(err)
	s.Equal("me", rec.Username)
	s.Equal([]model.PeerID{7, 8}, rec.Self.Friends)

	cached, err := s.app.Memory.GetProfile(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal("user7", cached.Username)
}

// Test: a restarted engine picks up the persisted self record
func (s *IntegrationSuite) TestRestartRestoresSelf() {
	s.app.Remote.Emit(s.ctx, string(model.EventSelfUpdated), map[string]any{
		"user": map[string]any{"userId": "5", "displayName": "Five", "friendIds": []string{"3"}},
	})

	restarted := newWithDependencies(s.app.Memory, s.app.Remote, s.app.Tokens, s.app.MockClock, s.app.MockRandom, engine.DefaultConfig(), testutil.NopLogger())
	s.Require().NoError(restarted.Engine.Init(s.ctx))

	self := restarted.Engine.Self()
	s.Equal(model.PeerID(5), self.ID)
	s.Equal("Five", self.DisplayName)
	s.Equal([]model.PeerID{3}, self.Relationships.Friends.Slice())
}

func TestNewRejectsUnknownStorage(t *testing.T) {
	_, err := New(Config{RemoteURL: "http://localhost", StorageType: "bogus"})
	assert.Error(t, err)

	_, err = New(Config{StorageType: StorageTypeMemory})
	assert.Error(t, err)

	_, err = New(Config{RemoteURL: "http://localhost", StorageType: StorageTypeRedis})
	assert.Error(t, err)

	_, err = New(Config{RemoteURL: "http://localhost", StorageType: StorageTypeSQLite})
	assert.Error(t, err)
}

func TestNewDefaultsToMemory(t *testing.T) {
	app, err := New(Config{RemoteURL: "http://localhost"})
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &memory.Storage{}, app.Cache)
	assert.NotNil(t, app.Client)
	assert.NotNil(t, app.Stream)
}

// Test: the production wiring against an HTTP remote, with a sqlite cache
func TestAppAgainstHTTPRemote(t *testing.T) {
	remote := transporttest.NewServer()
	defer remote.Close()
	remote.Reply(transport.MethodLogin, map[string]any{"userId": "1"})
	remote.Reply(transport.MethodSubscribeUpdates, map[string]any{})
	remote.Reply(transport.MethodRelationshipList, map[string]any{
		"friends":                 []map[string]string{},
		"outgoingPendingRequests": []map[string]string{},
		"incomingPendingRequests": []map[string]string{{"from": "4"}},
	})
	remote.Reply(transport.MethodPeerInfo, map[string]any{"userId": "4", "username": "four", "countryCode": "DE"})

	app, err := New(Config{
		RemoteURL:   remote.URL,
		Tokens:      auth.NewMemoryTokens("secret"),
		StorageType: StorageTypeSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "cache.db"),
	})
	require.NoError(t, err)
	defer app.Close()
	assert.IsType(t, &sqlite.Storage{}, app.Cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Engine.Init(ctx))
	assert.True(t, app.Engine.Authenticated())

	app.Engine.Bind(app.Stream)
	done := make(chan error, 1)
	go func() {
		done <- app.Engine.Run(ctx, app.Stream, engine.RunConfig{ReconnectDelay: 10 * time.Millisecond}, app.Random)
	}()

	// Reconcile runs on connect
	require.Eventually(t, func() bool {
		return app.Engine.Snapshot().LastReconciledAt != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []model.PeerID{4}, app.Engine.Self().Relationships.Incoming.Slice())

	profile, err := app.Cache.GetProfile(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "DE", profile.CountryCode)

	remote.Push(string(model.EventRequestAccepted), map[string]string{"from": "4"})
	require.Eventually(t, func() bool {
		return app.Engine.Self().Relationships.Friends.Has(4)
	}, 2*time.Second, 10*time.Millisecond)

	for _, token := range remote.Tokens() {
		assert.Equal(t, "secret", token)
	}

	cancel()
	require.NoError(t, <-done)
}

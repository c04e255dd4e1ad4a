package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/testutil"
	"github.com/mcoot/relsync/internal/transport"
	"github.com/mcoot/relsync/internal/transport/transporttest"
)

type recordingConn struct {
	tokens []string
}

func (c *recordingConn) SetToken(token string) {
	c.tokens = append(c.tokens, token)
}

func (c *recordingConn) current() string {
	if len(c.tokens) == 0 {
		return ""
	}
	return c.tokens[len(c.tokens)-1]
}

type failingTokens struct{}

func (failingTokens) Load() (string, error) { return "", errors.New("disk on fire") }
func (failingTokens) Save(string) error     { return errors.New("disk on fire") }
func (failingTokens) Clear() error          { return errors.New("disk on fire") }

type ServiceSuite struct {
	suite.Suite
	remote  *transporttest.Fake
	tokens  *MemoryTokens
	conn    *recordingConn
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.remote = transporttest.New()
	s.remote.Reply(transport.MethodLogin, map[string]any{"userId": "12"})
	s.remote.Reply(transport.MethodLogout, map[string]any{})
	s.tokens = NewMemoryTokens("tok")
	s.conn = &recordingConn{}
	s.service = New(s.remote, s.tokens, testutil.NopLogger(), s.conn)
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestHasCredentials() {
	ok, err := s.service.HasCredentials(s.ctx)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.tokens.Clear())
	ok, err = s.service.HasCredentials(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestHasCredentialsStoreError() {
	s.service = New(s.remote, failingTokens{}, testutil.NopLogger())
	_, err := s.service.HasCredentials(s.ctx)
	s.Error(err)
}

func (s *ServiceSuite) TestLoginSucceeds() {
	session, err := s.service.Login(s.ctx)
	s.Require().NoError(err)

	s.Equal(model.PeerID(12), session.UserID)
	s.Equal("tok", s.conn.current())
	s.Len(s.remote.Calls(transport.MethodLogin), 1)
	s.JSONEq(`{"token":"tok"}`, string(s.remote.Calls(transport.MethodLogin)[0].Params))
}

func (s *ServiceSuite) TestLoginWithoutToken() {
	s.Require().NoError(s.tokens.Clear())

	_, err := s.service.Login(s.ctx)

	s.ErrorIs(err, model.ErrNoCredentials)
	s.Empty(s.remote.Calls(transport.MethodLogin))
}

func (s *ServiceSuite) TestLoginRejected() {
	s.remote.Fail(transport.MethodLogin, "token expired")

	_, err := s.service.Login(s.ctx)

	s.ErrorIs(err, model.ErrNotAuthenticated)
	var terr *transport.Error
	s.ErrorAs(err, &terr)
	s.Equal("", s.conn.current())
}

func (s *ServiceSuite) TestLogoutClearsToken() {
	_, err := s.service.Login(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Logout(s.ctx))

	token, _ := s.tokens.Load()
	s.Empty(token)
	s.Equal("", s.conn.current())
	s.Len(s.remote.Calls(transport.MethodLogout), 1)
}

func (s *ServiceSuite) TestLogoutRemoteFailureStillClears() {
	s.remote.Fail(transport.MethodLogout, "gone")

	err := s.service.Logout(s.ctx)

	var terr *transport.Error
	s.ErrorAs(err, &terr)
	token, _ := s.tokens.Load()
	s.Empty(token)
}

func TestFileTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	tokens := &FileTokens{Path: path}

	token, err := tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, tokens.Save("abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0600))
	token, err = tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, tokens.Clear())
	require.NoError(t, tokens.Clear())
	token, err = tokens.Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

// Package auth establishes the session with the remote service from a
// stored token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/transport"
)

// TokenSetter is a connection that sends the session token
type TokenSetter interface {
	SetToken(token string)
}

type loginParams struct {
	Token string `json:"token"`
}

// Session is the result of a successful login
type Session struct {
	UserID model.PeerID `json:"userId"`
}

// Service handles authentication against the remote service
type Service struct {
	requester transport.Requester
	tokens    TokenStore
	conns     []TokenSetter
	logger    *slog.Logger
}

// New creates a new auth Service. conns receive the token on login and
// lose it on logout.
func New(requester transport.Requester, tokens TokenStore, logger *slog.Logger, conns ...TokenSetter) *Service {
	return &Service{
		requester: requester,
		tokens:    tokens,
		conns:     conns,
		logger:    logger.With(slog.String("component", "auth")),
	}
}

// HasCredentials reports whether a session token is stored
func (s *Service) HasCredentials(ctx context.Context) (bool, error) {
	token, err := s.tokens.Load()
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// Login authenticates with the stored token
func (s *Service) Login(ctx context.Context) (*Session, error) {
	token, err := s.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return nil, model.ErrNoCredentials
	}

	s.setToken(token)

	var session Session
	if err := s.requester.Request(ctx, transport.MethodLogin, loginParams{Token: token}, &session); err != nil {
		s.setToken("")
		s.logger.Warn("login failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", model.ErrNotAuthenticated, err)
	}

	s.logger.Info("logged in", slog.Int64("user_id", int64(session.UserID)))
	return &session, nil
}

// Logout ends the remote session and forgets the stored token. The local
// credentials are dropped even when the remote call fails.
func (s *Service) Logout(ctx context.Context) error {
	remoteErr := s.requester.Request(ctx, transport.MethodLogout, struct{}{}, nil)
	if remoteErr != nil {
		s.logger.Warn("remote logout failed", slog.String("error", remoteErr.Error()))
	}

	s.setToken("")
	clearErr := s.tokens.Clear()
	if clearErr != nil {
		clearErr = fmt.Errorf("clear token: %w", clearErr)
	}

	s.logger.Info("logged out")
	return errors.Join(remoteErr, clearErr)
}

func (s *Service) setToken(token string) {
	for _, c := range s.conns {
		c.SetToken(token)
	}
}

package bykc

import (
	"context"
	"log/slog"
	"sync"
)

// TokenCache persists the last-known session token across process restarts.
type TokenCache interface {
	// GetToken returns the cached token, or "" when none is stored.
	GetToken(ctx context.Context) (string, error)

	// SetToken stores the token.
	SetToken(ctx context.Context, token string) error
}

// Session owns the current authentication token. The token is the sole
// authorization artifact attached to requests; a cleared token never reaches
// the network.
//
// Login and soft login are serialized by an internal mutex so two concurrent
// recoveries cannot race to overwrite the token mid-flight.
type Session struct {
	auth   Authenticator
	cache  TokenCache
	logger *slog.Logger

	// loginMu serializes the login flows.
	loginMu sync.Mutex

	// mu guards token.
	mu    sync.RWMutex
	token string
}

// NewSession creates a logged-out session.
func NewSession(auth Authenticator, cache TokenCache, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		auth:   auth,
		cache:  cache,
		logger: logger,
	}
}

// Token returns the current token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SoftLogin tries the cached token first: install it and run the supplied
// probe (a lightweight authenticated call). Any probe failure, including a
// decode failure, falls through to a full login.
func (s *Session) SoftLogin(ctx context.Context, probe func(ctx context.Context) error) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if cached := s.cachedToken(ctx); cached != "" {
		s.setToken(cached)
		if err := probe(ctx); err == nil {
			s.logger.Info("soft login succeeded with cached token")
			return nil
		} else {
			s.logger.Info("cached token rejected, falling back to full login", "error", err)
		}
	}

	return s.login(ctx)
}

// Login performs the full credential exchange unconditionally.
func (s *Session) Login(ctx context.Context) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	return s.login(ctx)
}

// login runs the authenticator and installs the fresh token. Callers hold
// loginMu.
func (s *Session) login(ctx context.Context) error {
	token, err := s.auth.Login(ctx)
	if err != nil {
		return err
	}

	s.setToken(token)
	if err := s.cache.SetToken(ctx, token); err != nil {
		// A cold cache only costs one extra login after the next restart.
		s.logger.Warn("failed to persist session token", "error", err)
	}
	s.logger.Info("login succeeded")
	return nil
}

// Logout clears the token. Subsequent requests fail fast until a login.
func (s *Session) Logout() {
	s.setToken("")
}

func (s *Session) cachedToken(ctx context.Context) string {
	token, err := s.cache.GetToken(ctx)
	if err != nil {
		s.logger.Warn("failed to read cached token", "error", err)
		return ""
	}
	return token
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"housing_sync/internal/domain"
	"housing_sync/internal/validation"
)

// CacheClearer is the request cache's reset hook.
type CacheClearer interface {
	Clear()
}

// RememberStore is the credential store plus the remember-me probe.
type RememberStore interface {
	domain.CredentialStore
	HasSavedCredentials() bool
}

// Session owns sign-in state: token and user in the credential store,
// optional remembered login, and a fresh request cache per identity.
type Session struct {
	auth        domain.AuthService
	creds       RememberStore
	cache       CacheClearer
	unreachable func(error) bool
	log         zerolog.Logger
}

func NewSession(auth domain.AuthService, creds RememberStore, cache CacheClearer, unreachable func(error) bool, log zerolog.Logger) *Session {
	if unreachable == nil {
		unreachable = defaultUnreachable
	}
	return &Session{auth: auth, creds: creds, cache: cache, unreachable: unreachable, log: log}
}

// User is the signed-in user as last persisted.
func (s *Session) User() (domain.User, bool) {
	if _, ok := s.creds.Token(); !ok {
		return domain.User{}, false
	}
	return s.creds.CurrentUser()
}

func (s *Session) Login(ctx context.Context, email, password string, remember bool) (domain.User, error) {
	req := domain.LoginRequest{Email: email, Password: password}
	if err := validation.Struct(req); err != nil {
		return domain.User{}, err
	}
	res, err := s.auth.Login(ctx, req)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.establish(res); err != nil {
		return domain.User{}, err
	}
	s.remember(email, password, remember)
	return res.User, nil
}

func (s *Session) Register(ctx context.Context, req domain.RegisterRequest, remember bool) (domain.User, error) {
	if err := validation.Struct(req); err != nil {
		return domain.User{}, err
	}
	res, err := s.auth.Register(ctx, req)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.establish(res); err != nil {
		return domain.User{}, err
	}
	s.remember(req.Email, req.Password, remember)
	return res.User, nil
}

func (s *Session) establish(res domain.AuthResult) error {
	if res.Token == "" {
		return fmt.Errorf("auth response without token")
	}
	s.cache.Clear()
	if err := s.creds.SetToken(res.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.creds.SetUser(res.User); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

func (s *Session) remember(email, password string, remember bool) {
	if err := s.creds.SaveCredentials(email, password, remember); err != nil {
		s.log.Warn().Err(err).Msg("remember login")
	}
}

// AutoLogin signs in with remembered credentials. Credentials the remote
// rejects are forgotten; network trouble leaves them for next time.
func (s *Session) AutoLogin(ctx context.Context) (domain.User, bool) {
	email, password, ok := s.creds.SavedCredentials()
	if !ok {
		return domain.User{}, false
	}
	u, err := s.Login(ctx, email, password, true)
	if err == nil {
		s.log.Info().Str("user_id", u.ID).Msg("auto-login succeeded")
		return u, true
	}
	if s.unreachable(err) {
		s.log.Info().Err(err).Msg("auto-login deferred; remote unreachable")
		return domain.User{}, false
	}
	s.log.Warn().Err(err).Msg("auto-login failed; forgetting saved credentials")
	if cerr := s.creds.ClearSavedCredentials(); cerr != nil {
		s.log.Warn().Err(cerr).Msg("clear saved credentials")
	}
	return domain.User{}, false
}

// Logout tells the remote when it can, then always drops local auth state.
func (s *Session) Logout(ctx context.Context) error {
	if _, ok := s.creds.Token(); ok {
		if err := s.auth.Logout(ctx); err != nil && !errors.Is(err, domain.ErrUnauthorized) {
			s.log.Warn().Err(err).Msg("remote logout failed; clearing locally anyway")
		}
	}
	s.cache.Clear()
	return s.creds.Clear()
}

// Refresh swaps the bearer token for a new one.
func (s *Session) Refresh(ctx context.Context) error {
	if _, ok := s.creds.Token(); !ok {
		return domain.ErrUnauthorized
	}
	tok, err := s.auth.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return fmt.Errorf("refresh returned empty token")
	}
	s.cache.Clear()
	return s.creds.SetToken(tok)
}

// Me asks the remote who we are, falling back to the stored user when the
// remote cannot be reached.
func (s *Session) Me(ctx context.Context) (domain.User, error) {
	if _, ok := s.creds.Token(); !ok {
		return domain.User{}, domain.ErrUnauthorized
	}
	u, err := s.auth.CurrentUser(ctx)
	if err == nil {
		if serr := s.creds.SetUser(u); serr != nil {
			s.log.Warn().Err(serr).Msg("store user")
		}
		return u, nil
	}
	if s.unreachable(err) {
		if local, ok := s.creds.CurrentUser(); ok {
			return local, nil
		}
	}
	return domain.User{}, err
}

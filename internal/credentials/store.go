// Package credentials persists the auth token, the signed-in user and the
// optional remember-me login on the device.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"

	"housing_sync/internal/domain"
	"housing_sync/internal/offline"
)

const (
	keyToken = "auth:token"
	keyUser  = "auth:user"
	keySaved = "auth:saved"

	// SavedMaxAge is how long remembered credentials stay usable after last use.
	SavedMaxAge = 30 * 24 * time.Hour

	hkdfSalt = "housing-sync-device-credentials"
	hkdfInfo = "remember-me-v1"
)

var (
	ErrNoDeviceSecret = errors.New("device secret not configured; password not remembered")
	errSealed         = errors.New("sealed password is corrupt")
)

type Store struct {
	kv   offline.KV
	aead cipher.AEAD // nil without a device secret
	now  func() time.Time
	log  zerolog.Logger

	mu sync.Mutex
}

var _ domain.CredentialStore = (*Store)(nil)

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

// New returns a store over kv. deviceSecret keys the remember-me sealing;
// when empty, SaveCredentials with remember=true returns ErrNoDeviceSecret.
func New(kv offline.KV, deviceSecret string, opts ...Option) (*Store, error) {
	s := &Store{kv: kv, now: time.Now, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	if deviceSecret != "" {
		aead, err := newAEAD(deviceSecret)
		if err != nil {
			return nil, err
		}
		s.aead = aead
	}
	return s, nil
}

func newAEAD(secret string) (cipher.AEAD, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return cipher.NewGCM(block)
}

// ---- token / user ----

func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err := s.kv.Get(keyToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("read token")
		return "", false
	}
	if !ok || len(v) == 0 {
		return "", false
	}
	return string(v), true
}

func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return s.kv.Delete(keyToken)
	}
	return s.kv.Set(keyToken, []byte(token))
}

func (s *Store) CurrentUser() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err := s.kv.Get(keyUser)
	if err != nil || !ok {
		return domain.User{}, false
	}
	var u domain.User
	if err := json.Unmarshal(v, &u); err != nil {
		s.log.Warn().Err(err).Msg("stored user is corrupt; dropping")
		_ = s.kv.Delete(keyUser)
		return domain.User{}, false
	}
	return u, true
}

func (s *Store) SetUser(u domain.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(keyUser, b)
}

// ---- remember me ----

// SaveCredentials remembers email/password, refreshing LastUsed. With
// remember=false any previously saved login is removed instead.
func (s *Store) SaveCredentials(email, password string, remember bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !remember {
		return s.kv.Delete(keySaved)
	}
	if s.aead == nil {
		return ErrNoDeviceSecret
	}
	sealed, err := s.seal(password)
	if err != nil {
		return err
	}
	b, err := json.Marshal(domain.SavedCredentials{
		Email:          email,
		SealedPassword: sealed,
		RememberMe:     true,
		LastUsed:       s.now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.kv.Set(keySaved, b)
}

// SavedCredentials returns the remembered login. Entries older than
// SavedMaxAge or that fail to open are purged and reported absent.
func (s *Store) SavedCredentials() (email, password string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found, err := s.kv.Get(keySaved)
	if err != nil {
		s.log.Warn().Err(err).Msg("read saved credentials")
		return "", "", false
	}
	if !found {
		return "", "", false
	}
	var sc domain.SavedCredentials
	if err := json.Unmarshal(v, &sc); err != nil {
		s.purgeSaved("corrupt", err)
		return "", "", false
	}
	if sc.LastUsed.Before(s.now().Add(-SavedMaxAge)) {
		s.purgeSaved("expired", nil)
		return "", "", false
	}
	if !sc.RememberMe {
		return "", "", false
	}
	if s.aead == nil {
		return "", "", false
	}
	pw, err := s.open(sc.SealedPassword)
	if err != nil {
		s.purgeSaved("unreadable", err)
		return "", "", false
	}
	return sc.Email, pw, true
}

// HasSavedCredentials reports whether auto-login can be attempted.
func (s *Store) HasSavedCredentials() bool {
	_, _, ok := s.SavedCredentials()
	return ok
}

func (s *Store) ClearSavedCredentials() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(keySaved)
}

// Clear drops token, user and remembered login. Used on logout and on any
// 401 from the remote.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(
		s.kv.Delete(keyToken),
		s.kv.Delete(keyUser),
		s.kv.Delete(keySaved),
	)
}

// purgeSaved drops the remember-me blob. Caller holds mu.
func (s *Store) purgeSaved(reason string, cause error) {
	ev := s.log.Info().Str("reason", reason)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("purging saved credentials")
	if err := s.kv.Delete(keySaved); err != nil {
		s.log.Warn().Err(err).Msg("purge saved credentials")
	}
}

func (s *Store) seal(plain string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plain), []byte(keySaved))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errSealed
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return "", errSealed
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(keySaved))
	if err != nil {
		return "", errSealed
	}
	return string(plain), nil
}

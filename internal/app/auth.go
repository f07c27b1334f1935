package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"housing_sync/internal/domain"
	"housing_sync/internal/validation"
)

// Claims are carried by every bearer token the API issues.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

// AuthService issues and checks bearer tokens. Logged-out token ids are kept
// in the cache until the token would have expired anyway.
type AuthService struct {
	users  domain.UserRepository
	cache  domain.Cache
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewAuthService(users domain.UserRepository, cache domain.Cache, cfg AuthConfig) (*AuthService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthService{users: users, cache: cache, secret: []byte(cfg.Secret), ttl: cfg.TokenTTL, cost: cfg.BcryptCost, now: cfg.Now}, nil
}

func revokedKey(jti string) string { return "revoked:" + jti }

func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return domain.AuthResult{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, domain.UserRecord{
		User:         domain.User{Name: req.Name, Email: req.Email, Phone: req.Phone, Role: req.Role},
		PasswordHash: hash,
	})
	if errors.Is(err, domain.ErrConflict) {
		return domain.AuthResult{}, &domain.ValidationError{Fields: map[string]string{"email": "has already been taken"}}
	}
	if err != nil {
		return domain.AuthResult{}, err
	}
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (domain.AuthResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req); err != nil {
		return domain.AuthResult{}, err
	}
	rec, err := s.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AuthResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.AuthResult{}, err
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(req.Password)) != nil {
		return domain.AuthResult{}, domain.ErrInvalidCredentials
	}
	return s.issue(rec.User)
}

func (s *AuthService) issue(u domain.User) (domain.AuthResult, error) {
	tok, err := s.sign(u)
	if err != nil {
		return domain.AuthResult{}, err
	}
	return domain.AuthResult{Token: tok, User: u}, nil
}

func (s *AuthService) sign(u domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

// Authenticate verifies a bearer token and loads its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.User, *Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return domain.User{}, nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if s.cache != nil && claims.ID != "" {
		var revoked bool
		if ok, _ := s.cache.Get(ctx, revokedKey(claims.ID), &revoked); ok && revoked {
			return domain.User{}, nil, domain.ErrUnauthorized
		}
	}
	u, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, nil, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.User{}, nil, err
	}
	return u, claims, nil
}

// Logout revokes the token described by claims.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	if s.cache == nil || claims == nil || claims.ID == "" {
		return nil
	}
	ttl := s.ttl
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	secs := int(ttl.Seconds()) + 1
	if secs <= 0 {
		return nil
	}
	return s.cache.Set(ctx, revokedKey(claims.ID), true, secs)
}

// Refresh revokes the current token and issues a new one for u.
func (s *AuthService) Refresh(ctx context.Context, u domain.User, claims *Claims) (string, error) {
	if err := s.Logout(ctx, claims); err != nil {
		return "", err
	}
	return s.sign(u)
}

// Package remote talks to the housing API. Every call goes through the
// shared request cache; network round-trips below it go through Transport.
package remote

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"housing_sync/internal/adapters/observability"
	"housing_sync/internal/domain"
	"housing_sync/internal/reqcache"
)

// TokenSource supplies the bearer token; the credential store satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

type Client struct {
	base   string
	cache  *reqcache.Cache
	tokens TokenSource
	log    zerolog.Logger
}

var (
	_ domain.PropertyService = (*Client)(nil)
	_ domain.AuthService     = (*Client)(nil)
	_ domain.PhotoUploader   = (*Client)(nil)
)

// New builds a client over cache. Build the cache with a Transport as its
// Doer to get rate limiting and the circuit breaker.
func New(base string, cache *reqcache.Cache, tokens TokenSource, log zerolog.Logger) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote base URL: %w", err)
	}
	if cache == nil {
		return nil, fmt.Errorf("request cache is required")
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		cache:  cache,
		tokens: tokens,
		log:    log,
	}, nil
}

// ---- properties ----

func (c *Client) ListProperties(ctx context.Context) ([]domain.Property, error) {
	var out []domain.Property
	return out, c.call(ctx, "properties.list", http.MethodGet, "/properties", nil, &out)
}

func (c *Client) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	var out domain.Property
	return out, c.call(ctx, "properties.get", http.MethodGet, "/properties/"+url.PathEscape(id), nil, &out)
}

func (c *Client) CreateProperty(ctx context.Context, p domain.Property) (domain.Property, error) {
	var out domain.Property
	return out, c.call(ctx, "properties.create", http.MethodPost, "/properties", p, &out)
}

func (c *Client) UpdateProperty(ctx context.Context, p domain.Property) (domain.Property, error) {
	var out domain.Property
	return out, c.call(ctx, "properties.update", http.MethodPut, "/properties/"+url.PathEscape(p.ID), p, &out)
}

func (c *Client) DeleteProperty(ctx context.Context, id string) error {
	return c.call(ctx, "properties.delete", http.MethodDelete, "/properties/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ContactLandlord(ctx context.Context, req domain.ContactRequest) (domain.ContactResult, error) {
	var env envelope
	if err := c.callEnvelope(ctx, "contact", http.MethodPost, "/contact-landlord", req, &env); err != nil {
		return domain.ContactResult{}, err
	}
	return domain.ContactResult{Success: env.Success, Message: env.Message}, nil
}

// photoUpload is the POST body of /properties/{id}/photos.
type photoUpload struct {
	ID       string `json:"id"`
	Data     string `json:"data"`
	FileName string `json:"fileName"`
	MIMEType string `json:"mimeType"`
}

// UploadPhoto sends one queued photo. The upload id doubles as the photo id,
// so a repeat after a lost response is accepted by the server as a duplicate.
func (c *Client) UploadPhoto(ctx context.Context, p domain.PendingPhotoUpload) error {
	body := photoUpload{ID: p.ID, Data: p.Data, FileName: p.FileName, MIMEType: p.MIMEType}
	return c.call(ctx, "photos.upload", http.MethodPost, "/properties/"+url.PathEscape(p.PropertyID)+"/photos", body, nil)
}

// FetchImage downloads a listing image. Relative refs resolve against the API base.
func (c *Client) FetchImage(ctx context.Context, ref string) ([]byte, string, error) {
	u := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		u = c.base + "/" + strings.TrimLeft(ref, "/")
	}
	resp, err := c.do(ctx, "images.get", http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// ---- auth ----

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.AuthResult, error) {
	var out domain.AuthResult
	err := c.call(ctx, "auth.login", http.MethodPost, "/login", req, &out)
	if errors.Is(err, domain.ErrUnauthorized) {
		return out, domain.ErrInvalidCredentials
	}
	return out, err
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthResult, error) {
	var out domain.AuthResult
	return out, c.call(ctx, "auth.register", http.MethodPost, "/register", req, &out)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, "auth.logout", http.MethodPost, "/logout", nil, nil)
}

func (c *Client) CurrentUser(ctx context.Context) (domain.User, error) {
	var out domain.User
	return out, c.call(ctx, "auth.user", http.MethodGet, "/user", nil, &out)
}

func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	return out.Token, c.call(ctx, "auth.refresh", http.MethodPost, "/refresh-token", nil, &out)
}

// ---- internals ----

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// call sends in as JSON and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, endpoint, method, path string, in, out any) error {
	var env envelope
	if err := c.callEnvelope(ctx, endpoint, method, path, in, &env); err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}

func (c *Client) callEnvelope(ctx context.Context, endpoint, method, path string, in any, env *envelope) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", endpoint, err)
		}
		body = b
	}
	resp, err := c.do(ctx, endpoint, method, c.base+path, body)
	if err != nil {
		return err
	}
	if err := resp.Decode(env); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", endpoint, err)
	}
	return nil
}

// do performs one logical request. A 429 on a GET is retried after
// Retry-After (or a short backoff) at most twice; nothing else is retried.
func (c *Client) do(ctx context.Context, endpoint, method, u string, body []byte) (*reqcache.Response, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		hdr := http.Header{}
		hdr.Set("User-Agent", "housing-agent/1.0")
		if tok, ok := c.tokens.Token(); ok {
			hdr.Set("Authorization", "Bearer "+tok)
		}

		start := time.Now()
		resp, err := c.cache.Fetch(ctx, method, u, body, hdr)
		status := 0
		if resp != nil {
			status = resp.Status
		}
		var se *reqcache.StatusError
		if errors.As(err, &se) {
			status = se.Status
		}
		observability.ObserveExternal("remote", endpoint, status, time.Since(start))
		if err == nil {
			return resp, nil
		}

		lastErr = translate(err)
		if se == nil || se.Status != http.StatusTooManyRequests || method != http.MethodGet || i == 2 {
			return nil, lastErr
		}
		wait := retryAfter(se.RetryAfter)
		if wait == 0 {
			wait = backoff(i)
		}
		c.log.Debug().Str("endpoint", endpoint).Dur("wait", wait).Msg("rate limited by remote")
		if !sleepCtx(ctx, wait) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// translate turns a 422 envelope into a *domain.ValidationError and keeps
// everything else as is.
func translate(err error) error {
	var se *reqcache.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnprocessableEntity {
		return err
	}
	var env envelope
	if json.Unmarshal(se.Body, &env) != nil || len(env.Errors) == 0 {
		return err
	}
	return (&domain.ValidationError{Fields: env.Errors}).OrNil()
}

// IsUnreachable reports whether err means the remote could not be reached at
// all, as opposed to answering with an error.
func IsUnreachable(err error) bool {
	var te *reqcache.TransportError
	return errors.As(err, &te) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses a Retry-After value (seconds or HTTP-date). 0 if absent or invalid.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff is 200ms doubling per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

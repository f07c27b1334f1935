// Package reqcache de-duplicates in-flight GETs and memoizes recent successful
// responses for a short time. One Cache is created per process and injected.
package reqcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"housing_sync/internal/adapters/observability"
	"housing_sync/internal/domain"
)

const DefaultResponseTTL = 300 * time.Second

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// CredentialClearer drops persisted auth state after a 401.
type CredentialClearer interface {
	Clear() error
}

// Response is shared between every caller that joined the same flight or hit
// the same completed entry. Treat it as read-only.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	FetchedAt time.Time
}

// Decode unmarshals the body into dst.
func (r *Response) Decode(dst any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, dst)
}

type Options struct {
	ResponseTTL time.Duration
	Doer        Doer
	Now         func() time.Time
	Clearer     CredentialClearer
	Logger      zerolog.Logger
}

type entry struct {
	resp *Response
	at   time.Time
}

type Cache struct {
	ttl     time.Duration
	doer    Doer
	now     func() time.Time
	clearer CredentialClearer
	log     zerolog.Logger

	mu     sync.Mutex
	done   map[string]entry
	flight *singleflight.Group
	gen    uint64 // bumped by Clear; stale flights must not repopulate
}

func New(o Options) *Cache {
	if o.ResponseTTL <= 0 {
		o.ResponseTTL = DefaultResponseTTL
	}
	if o.Doer == nil {
		o.Doer = &http.Client{Timeout: 20 * time.Second}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	c := &Cache{
		ttl:     o.ResponseTTL,
		doer:    o.Doer,
		now:     o.Now,
		clearer: o.Clearer,
		log:     o.Logger,
	}
	c.Clear()
	return c
}

// SetClearer wires the credential store after construction; the store itself
// may depend on components built with this cache.
func (c *Cache) SetClearer(cl CredentialClearer) {
	c.mu.Lock()
	c.clearer = cl
	c.mu.Unlock()
}

// Clear empties both pools. Flights already running still answer their
// callers but no longer populate the completed pool.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.done = make(map[string]entry)
	c.flight = &singleflight.Group{}
	c.gen++
	c.mu.Unlock()
	observability.ObserveCache("request", "clear")
}

// Len reports the number of completed entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

func key(method, url string) string { return method + " " + url }

// Fetch issues method url. Only GETs are cached and de-duplicated; body is
// ignored for them.
func (c *Cache) Fetch(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet {
		return c.roundTrip(ctx, method, url, body, header)
	}

	k := key(method, url)
	c.mu.Lock()
	if e, ok := c.done[k]; ok && c.now().Sub(e.at) < c.ttl {
		c.mu.Unlock()
		observability.ObserveCache("request", "hit")
		return e.resp, nil
	}
	gen := c.gen
	// DoChan only registers the call; fn runs on its own goroutine.
	ch := c.flight.DoChan(k, func() (any, error) {
		// the flight serves every joined caller, so it must outlive the first one's ctx
		resp, err := c.roundTrip(context.WithoutCancel(ctx), method, url, nil, header)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.done[k] = entry{resp: resp, at: c.now()}
		}
		c.mu.Unlock()
		return resp, nil
	})
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			observability.ObserveCache("request", "join")
		} else {
			observability.ObserveCache("request", "miss")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Response), nil
	}
}

func (c *Cache) roundTrip(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for h, vs := range header {
		for _, v := range vs {
			req.Header.Add(h, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.clearCredentials()
		}
		return nil, &StatusError{
			Method:     method,
			URL:        url,
			Status:     resp.StatusCode,
			Body:       b,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: b, FetchedAt: c.now()}, nil
}

func (c *Cache) clearCredentials() {
	c.mu.Lock()
	cl := c.clearer
	c.mu.Unlock()
	if cl == nil {
		return
	}
	if err := cl.Clear(); err != nil {
		c.log.Warn().Err(err).Msg("clear credentials after 401")
	}
}

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Body holds the raw payload.
type StatusError struct {
	Method     string
	URL        string
	Status     int
	Body       []byte
	RetryAfter string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, msg)
}

// Is maps well-known statuses onto the domain sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case domain.ErrForbidden:
		return e.Status == http.StatusForbidden
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

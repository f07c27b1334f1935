package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"housing_sync/internal/adapters/observability"
	"housing_sync/internal/reqcache"
)

// errServerStatus marks a 5xx inside the breaker; the response itself is
// still handed back to the request cache.
var errServerStatus = errors.New("remote answered with a server error")

// Transport is the reqcache.Doer for the housing API. It sits below the
// request cache, so only real round-trips spend a rate token or count
// against the circuit breaker.
type Transport struct {
	hc  *http.Client
	rl  *rate.Limiter
	cb  *gobreaker.CircuitBreaker[*http.Response]
	log zerolog.Logger
}

var _ reqcache.Doer = (*Transport)(nil)

func NewTransport(hc *http.Client, rps int, log zerolog.Logger) *Transport {
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	if rps <= 0 {
		rps = 5
	}
	t := &Transport{
		hc:  hc,
		rl:  rate.NewLimiter(rate.Limit(rps), rps),
		log: log,
	}
	t.cb = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx never reaches here as an error; caller cancellation says
		// nothing about the remote's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})
	return t
}

func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	if err := t.rl.Wait(req.Context()); err != nil {
		return nil, err
	}
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if err != nil {
		observability.ObserveExternalFailure("remote", err)
		t.log.Debug().Err(err).
			Str("err_type", observability.LabelErr(err)).
			Str("method", req.Method).
			Str("url", req.URL.Redacted()).
			Msg("remote round-trip failed")
	}
	return resp, err
}

// State reports the breaker state.
func (t *Transport) State() gobreaker.State { return t.cb.State() }

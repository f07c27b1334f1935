package netstatus

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"housing_sync/internal/adapters/observability"
)

// Prober stands in for the platform connectivity signal on a server: it polls
// the remote health endpoint and feeds the result to a Monitor.
type Prober struct {
	m        *Monitor
	url      string
	interval time.Duration
	hc       *http.Client
	log      zerolog.Logger
}

func NewProber(m *Monitor, healthURL string, interval time.Duration, log zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		m:        m,
		url:      healthURL,
		interval: interval,
		hc:       &http.Client{Timeout: 5 * time.Second},
		log:      log,
	}
}

// Check probes once and reports the result to the monitor.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.probe(ctx)
	if ctx.Err() != nil {
		return p.m.Online()
	}
	if online != p.m.Online() {
		p.log.Info().Bool("online", online).Msg("connectivity changed")
	}
	p.m.Set(online)
	return online
}

// Run checks immediately and then every interval until ctx ends.
func (p *Prober) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Check(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	start := time.Now()
	resp, err := p.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("remote", "healthz", 0, time.Since(start))
		p.log.Debug().Err(err).Msg("health probe failed")
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	observability.ObserveExternal("remote", "healthz", resp.StatusCode, time.Since(start))
	return resp.StatusCode < 500
}

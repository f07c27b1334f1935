package observability

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "housing", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "housing", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "housing", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "housing", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	ExternalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "housing", Name: "external_failures_total", Help: "Outbound round-trips that produced no response."},
		[]string{"service", "error"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "housing", Name: "cache_events_total", Help: "Cache hits/misses/joins/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|join|set|del|clear
	)
	SyncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "housing", Name: "sync_items_total", Help: "Pending uploads processed by sync passes."},
		[]string{"outcome"}, // uploaded|failed
	)
	SyncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "housing", Name: "sync_passes_total", Help: "Sync passes by result."},
		[]string{"result"}, // ok|partial|skipped
	)
	PendingUploads = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "housing", Name: "pending_uploads", Help: "Photos waiting in the upload queue."},
	)
	Online = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "housing", Name: "network_online", Help: "1 when the agent considers itself online."},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(InitRegistry()))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, ExternalFailures, CacheEvents,
		SyncItems, SyncPasses, PendingUploads, Online)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

// ObserveExternalFailure counts a round-trip that never got a response,
// labelled by the error's type.
func ObserveExternalFailure(service string, err error) {
	ExternalFailures.WithLabelValues(service, LabelErr(err)).Inc()
}

func ObserveCache(cache, event string) {
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveSyncItem(outcome string) { SyncItems.WithLabelValues(outcome).Inc() }

func ObserveSyncPass(result string) { SyncPasses.WithLabelValues(result).Inc() }

func SetPendingUploads(n int) { PendingUploads.Set(float64(n)) }

func SetOnline(online bool) {
	if online {
		Online.Set(1)
		return
	}
	Online.Set(0)
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}

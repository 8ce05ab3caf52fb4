package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the HLS relay.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	tokensMintedTotal  prometheus.Counter
	redemptionsTotal   *prometheus.CounterVec
	replayRecords      prometheus.Gauge
	upstreamFetchTotal *prometheus.CounterVec
	relayedBytesTotal  prometheus.Counter
	manifestsRewritten *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	tokensMintedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_tokens_minted_total",
		Help: "Total number of access tokens minted",
	})
	redemptionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_redemptions_total",
		Help: "Segment token redemptions by result",
	}, []string{"result"})
	replayRecords := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_replay_records",
		Help: "Number of use records held by the replay guard",
	})
	upstreamFetchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_upstream_fetches_total",
		Help: "Upstream fetches by kind (playlist, segment) and outcome",
	}, []string{"kind", "outcome"})
	relayedBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_relayed_bytes_total",
		Help: "Total bytes streamed from upstream to clients",
	})
	manifestsRewritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_manifests_rewritten_total",
		Help: "Rewritten playlists by playlist type",
	}, []string{"type"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		tokensMintedTotal,
		redemptionsTotal,
		replayRecords,
		upstreamFetchTotal,
		relayedBytesTotal,
		manifestsRewritten,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		tokensMintedTotal:  tokensMintedTotal,
		redemptionsTotal:   redemptionsTotal,
		replayRecords:      replayRecords,
		upstreamFetchTotal: upstreamFetchTotal,
		relayedBytesTotal:  relayedBytesTotal,
		manifestsRewritten: manifestsRewritten,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// AddTokensMinted adds n to the minted token counter.
func (m *Metrics) AddTokensMinted(n int) {
	m.tokensMintedTotal.Add(float64(n))
}

// IncRedemption records a redemption attempt with the given result label
// ("granted", "already_used", "rejected").
func (m *Metrics) IncRedemption(result string) {
	m.redemptionsTotal.WithLabelValues(result).Inc()
}

// SetReplayRecords sets the replay guard size gauge.
func (m *Metrics) SetReplayRecords(n int) {
	m.replayRecords.Set(float64(n))
}

// IncUpstreamFetch records an upstream fetch.
func (m *Metrics) IncUpstreamFetch(kind, outcome string) {
	m.upstreamFetchTotal.WithLabelValues(kind, outcome).Inc()
}

// AddRelayedBytes adds n to the relayed bytes counter.
func (m *Metrics) AddRelayedBytes(n int64) {
	m.relayedBytesTotal.Add(float64(n))
}

// IncManifestRewritten records a rewritten playlist of the given type.
func (m *Metrics) IncManifestRewritten(playlistType string) {
	m.manifestsRewritten.WithLabelValues(playlistType).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. replay records).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

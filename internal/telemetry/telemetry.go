// Package telemetry receives startup-latency samples and session outcomes
// and forwards them to Prometheus and the local history database.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"learnplay/internal/log"
	"learnplay/internal/media"
	"learnplay/internal/player"
)

// Metrics exports startup latency and session outcomes.
type Metrics struct {
	startup  *prometheus.HistogramVec
	sessions *prometheus.CounterVec
	errors   *prometheus.CounterVec
	warnings *prometheus.CounterVec

	mu       sync.Mutex
	lastSeen string // session id of the last counted session start
	failed   string // session id of the last counted failure
	warned   *media.Error
}

// NewMetrics registers the learnplay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		startup: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnplay_startup_latency_seconds",
			Help:    "Time from source negotiation to the first playable frame",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
		}, []string{"kind"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnplay_sessions_total",
			Help: "Playback sessions started, by resolved source kind",
		}, []string{"kind"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnplay_session_errors_total",
			Help: "Sessions that ended in the error state, by error kind",
		}, []string{"kind"}),
		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "learnplay_session_warnings_total",
			Help: "Non-fatal session notices such as failed quality switches",
		}, []string{"kind"}),
	}
}

// RecordStartupLatency implements player.LatencySink.
func (m *Metrics) RecordStartupLatency(sample media.LatencySample) {
	m.startup.WithLabelValues(sample.Kind.String()).Observe(float64(sample.Millis) / 1000)
}

// StateChanged implements player.Observer. Each session and each failure is
// counted once.
func (m *Metrics) StateChanged(st media.State) {
	if st.SessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.SessionID != m.lastSeen {
		m.lastSeen = st.SessionID
		m.sessions.WithLabelValues(st.Kind.String()).Inc()
	}
	if st.Status == media.StatusError && st.Error != nil && m.failed != st.SessionID {
		m.failed = st.SessionID
		m.errors.WithLabelValues(st.Error.Kind.String()).Inc()
	}
	if st.Warning != nil && st.Warning != m.warned {
		m.warned = st.Warning
		m.warnings.WithLabelValues(st.Warning.Kind.String()).Inc()
	}
}

// Fanout forwards each sample to every sink.
type Fanout []player.LatencySink

// RecordStartupLatency implements player.LatencySink.
func (f Fanout) RecordStartupLatency(sample media.LatencySample) {
	for _, s := range f {
		if s != nil {
			s.RecordStartupLatency(sample)
		}
	}
}

// LatencyStore persists latency samples.
type LatencyStore interface {
	RecordLatency(ctx context.Context, sample media.LatencySample) error
}

// HistorySink writes samples to a LatencyStore off the controller goroutine.
type HistorySink struct {
	store  LatencyStore
	logger zerolog.Logger

	samples chan media.LatencySample
	done    chan struct{}
	once    sync.Once
}

// NewHistorySink starts the writer goroutine. Close stops it.
func NewHistorySink(store LatencyStore, logger *zerolog.Logger) *HistorySink {
	h := &HistorySink{
		store:   store,
		logger:  log.WithComponent("telemetry"),
		samples: make(chan media.LatencySample, 16),
		done:    make(chan struct{}),
	}
	if logger != nil {
		h.logger = *logger
	}
	go h.run()
	return h
}

func (h *HistorySink) run() {
	defer close(h.done)
	for sample := range h.samples {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.store.RecordLatency(ctx, sample); err != nil {
			h.logger.Warn().Err(err).Str(log.FieldSessionID, sample.SessionID).Msg("persisting startup latency")
		}
		cancel()
	}
}

// RecordStartupLatency implements player.LatencySink. Samples that arrive
// while the buffer is full are dropped.
func (h *HistorySink) RecordStartupLatency(sample media.LatencySample) {
	select {
	case h.samples <- sample:
	default:
		h.logger.Warn().Str(log.FieldSessionID, sample.SessionID).Msg("latency buffer full, dropping sample")
	}
}

// Close flushes pending samples and stops the writer. No samples may be
// recorded after Close.
func (h *HistorySink) Close() {
	h.once.Do(func() { close(h.samples) })
	<-h.done
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

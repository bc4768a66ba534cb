package metrics

import (
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Ledger operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_operations_total",
			Help: "Total ledger operations by name and result",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worklog_operation_duration_seconds",
			Help:    "Ledger operation duration in seconds, including storage commit",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Consolidation metrics
	MergeGroupsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worklog_merge_groups_applied_total",
			Help: "Merge plans applied to stored spans",
		},
	)

	SpansAbsorbed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worklog_spans_absorbed_total",
			Help: "Spans deleted because a merge keeper absorbed them",
		},
	)

	// Active session metrics
	OpenSpansClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worklog_open_spans_closed_total",
			Help: "Open spans closed by the ledger",
		},
		[]string{"reason"},
	)

	SpansReopened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worklog_spans_reopened_total",
			Help: "Closed spans reopened by a start within the gap tolerance",
		},
	)

	// Cache metrics
	EntryCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worklog_entry_cache_hits_total",
			Help: "Entry cache hits",
		},
	)

	EntryCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worklog_entry_cache_misses_total",
			Help: "Entry cache misses",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		MergeGroupsApplied,
		SpansAbsorbed,
		OpenSpansClosed,
		SpansReopened,
		EntryCacheHits,
		EntryCacheMisses,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	ln := s.listener
	if ln != nil {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
	} else {
		var err error
		ln, err = net.Listen("tcp", s.server.Addr)
		if err != nil {
			return fmt.Errorf("metrics server listen on %s: %w", s.server.Addr, err)
		}
		s.listener = ln
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}

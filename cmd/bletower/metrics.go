package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/groutine"
	"github.com/srg/bletower/internal/metrics"
)

const metricsShutdownTimeout = 2 * time.Second

// metricsServer exposes /metrics while a session runs.
type metricsServer struct {
	srv    *http.Server
	addr   net.Addr
	done   chan struct{}
	logger *logrus.Logger
}

func startMetricsServer(addr string, logger *logrus.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	m := &metricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr(),
		done:   make(chan struct{}),
		logger: logger,
	}

	groutine.Go(context.Background(), "metrics-server", func(context.Context) {
		defer close(m.done)
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	})
	logger.WithField("addr", m.addr.String()).Info("Serving metrics")
	return m, nil
}

// Addr is the bound listen address
func (m *metricsServer) Addr() string { return m.addr.String() }

func (m *metricsServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.WithError(err).Warn("Metrics server shutdown")
	}
	<-m.done
}

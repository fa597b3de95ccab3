package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/grid-infra/dl-acceptor/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"
)

// Service hosts the sidecar HTTP endpoints: health checking and, when
// enabled, Prometheus metrics.
type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	metricsCfg opmetrics.CLIConfig
}

func New(metricsCfg opmetrics.CLIConfig) *Service {
	s := &Service{
		Healthz:    &HealthzServer{},
		Metrics:    &MetricsServer{},
		metricsCfg: metricsCfg,
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	log.Info("service starting")

	go func() {
		addr := net.JoinHostPort(HealthzHost, HealthzPort)
		log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("error starting healthz server", err)
		}
	}()

	if s.metricsCfg.Enabled {
		go func() {
			addr := net.JoinHostPort(s.metricsCfg.ListenAddr, strconv.Itoa(s.metricsCfg.ListenPort))
			log.Info("starting metrics server", "addr", addr)
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	log.Info("service started")
}

func (s *Service) Shutdown() {
	log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	log.Info("healthz stopped")

	if s.metricsCfg.Enabled {
		_ = s.Metrics.Shutdown()
		log.Info("metrics stopped")
	}

	log.Info("service stopped")
}

// Command telemetryclient is a minimal host process wiring pkg/client
// together: load config, build the client, connect, serve a metrics
// endpoint, and shut down cleanly on signal. Grounded on
// go-server-3/cmd/odin-ws/main.go's signal-driven shutdown, adapted
// from zap to this module's zerolog logger.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/wtyler2505/RoverMissionControl-sub013/internal/config"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/logging"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/model"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/protocol"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/subscription"
	"github.com/wtyler2505/RoverMissionControl-sub013/internal/transport"
	"github.com/wtyler2505/RoverMissionControl-sub013/pkg/client"
)

func main() {
	configName := flag.String("config", "", "config file name, without extension, searched in . and ./config")
	metricsAddr := flag.String("metrics-addr", ":9464", "listen address for the Prometheus metrics endpoint")
	flag.Parse()

	cfg, err := config.Load(*configName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{Level: cfg.Logging.Level, Format: logging.Format(cfg.Logging.Format)})

	protocols := protocolsFromStrings(cfg.Connection.Protocols)

	c := client.New(client.Options{
		Config: cfg,
		Log:    log,
		Dial:   transport.DefaultDialer(cfg.Connection.Timeout),
		Poller: transport.NewHTTPPoller(cfg.Connection.URL, cfg.Connection.Timeout),
		ClientCaps: protocol.Capabilities{
			SupportedProtocols:   protocols,
			PreferredProtocol:    firstOrDefault(protocols, model.ProtocolJSON),
			CompressionSupported: cfg.Connection.Compression,
			BinarySupported:      true,
			StreamingSupported:   true,
		},
		SubCaps: subscription.Capabilities{
			MaxBatchSize: 100,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("initial connect failed")
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runMetricsServer(ctx, *metricsAddr, log, c.Metrics().Registry)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			log.Error().Err(err).Msg("metrics server error")
		}
		stop()
	}

	c.Destroy()
	log.Info().Msg("client stopped")
}

func runMetricsServer(ctx context.Context, addr string, log zerolog.Logger, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics http server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics http server shutdown error")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func protocolsFromStrings(names []string) []model.Protocol {
	protocols := make([]model.Protocol, 0, len(names))
	for _, n := range names {
		switch n {
		case "json":
			protocols = append(protocols, model.ProtocolJSON)
		case "messagepack":
			protocols = append(protocols, model.ProtocolMessagePack)
		case "cbor":
			protocols = append(protocols, model.ProtocolCBOR)
		}
	}
	return protocols
}

func firstOrDefault(protocols []model.Protocol, def model.Protocol) model.Protocol {
	if len(protocols) == 0 {
		return def
	}
	return protocols[0]
}

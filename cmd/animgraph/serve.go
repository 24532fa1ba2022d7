package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/animgraph/internal/api"
	"github.com/AaronLay10/animgraph/internal/config"
	"github.com/AaronLay10/animgraph/internal/events"
	"github.com/AaronLay10/animgraph/internal/manager"
	"github.com/AaronLay10/animgraph/internal/mqtt"
	"github.com/AaronLay10/animgraph/internal/observability"
	"github.com/AaronLay10/animgraph/internal/storage/postgres"
	"github.com/AaronLay10/animgraph/internal/version"
)

func newServeCmd(configPath *string) *cobra.Command {
	var graphPath, motionsPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the HTTP API, MQTT parameter sync and frame loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if graphPath != "" {
				cfg.Assets.Graph = graphPath
			}
			if motionsPath != "" {
				cfg.Assets.Motions = motionsPath
			}
			for _, w := range cfg.Validate() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cfg.Log.Logger(cmd.ErrOrStderr()))
		},
	}
	serveCmd.Flags().StringVar(&graphPath, "graph", "", "Graph asset, overrides assets.graph")
	serveCmd.Flags().StringVar(&motionsPath, "motions", "", "Motion set, overrides assets.motions")
	return serveCmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Assets.Graph == "" || cfg.Assets.Motions == "" {
		return errors.New("assets.graph and assets.motions are required")
	}
	slog.SetDefault(logger)
	events.SetLogger(logger)

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "engine starting", map[string]interface{}{
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version.Version,
			OTLPEndpoint:   cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	readiness := api.NewReadiness()

	var history api.HistoryStore
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.Options{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
			Node:     hostname,
		})
		if err != nil {
			logger.Error("postgres unavailable, journal disabled", "error", err)
			readiness.SetPostgresState(false, false)
		} else {
			defer pg.Close()
			events.SetPostgresClient(pg)
			defer events.SetPostgresClient(nil)
			readiness.SetPostgresState(true, false)
			history = pg
		}
	}

	m, report, err := loadManager(cfg, cfg.Assets.Graph, cfg.Assets.Motions, logger,
		manager.WithEventHandler(manager.NewJournal(logger)))
	if err != nil {
		return err
	}
	defer m.Close()
	graphName := m.Graphs()[0].Name
	events.Emit("info", "graph.loaded", "", map[string]interface{}{
		"graph":    graphName,
		"path":     cfg.Assets.Graph,
		"problems": len(report.Problems),
	})
	for _, p := range report.Problems {
		events.Emit("warning", "graph.problem", p.Msg, map[string]interface{}{
			"graph": graphName,
			"kind":  p.Kind,
			"node":  p.Node,
		})
	}

	for i := 0; i < max(cfg.Assets.Instances, 1); i++ {
		inst, err := m.CreateInstance(graphName)
		if err != nil {
			return err
		}
		events.Emit("info", "instance.created", "", map[string]interface{}{
			"instance": inst.ID(),
			"graph":    graphName,
			"thread":   inst.ThreadIndex(),
		})
	}

	server := api.New(api.Options{
		Port:      cfg.API.Port,
		Manager:   m,
		Auth:      api.NewAuth(cfg.API),
		Readiness: readiness,
		History:   history,
		TLS:       &api.TLSConfig{CertFile: cfg.API.TLSCert, KeyFile: cfg.API.TLSKey},
		Logger:    logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(ctx) })
	g.Go(func() error { return frameLoop(ctx, m, cfg.Engine.FrameInterval(), readiness, logger) })
	if cfg.MQTT.Enabled {
		g.Go(func() error { return runMQTT(ctx, cfg.MQTT, m, readiness, logger) })
	}

	err = g.Wait()
	events.Emit("info", "system.shutdown", "engine stopping", nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// frameLoop evaluates one frame per tick with a fixed delta time.
func frameLoop(ctx context.Context, m *manager.Manager, dt float64, readiness *api.Readiness, logger *slog.Logger) error {
	interval := time.Duration(dt * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events.Emit("info", "loop.started", "", map[string]interface{}{"interval_ms": interval.Milliseconds()})
	readiness.SetEngineReady(true)
	defer readiness.SetEngineReady(false)

	var lastOverrun time.Time
	for {
		select {
		case <-ctx.Done():
			events.Emit("info", "loop.stopped", "", map[string]interface{}{"frames": m.LastFrame().Frame})
			return nil
		case <-ticker.C:
			if err := m.UpdateAll(ctx, dt); err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Error("frame failed", "error", err)
				events.Emit("error", "system.error", err.Error(), map[string]interface{}{"frame": m.LastFrame().Frame})
				continue
			}
			stats := m.LastFrame()
			if stats.Duration > interval && time.Since(lastOverrun) > time.Second {
				lastOverrun = time.Now()
				events.Emit("warning", "loop.overrun", "", map[string]interface{}{
					"frame":       stats.Frame,
					"duration_ms": float64(stats.Duration.Microseconds()) / 1000,
					"budget_ms":   float64(interval.Microseconds()) / 1000,
				})
			}
		}
	}
}

// runMQTT connects the parameter sync and the state publisher and keeps the
// readiness state current until ctx is done.
func runMQTT(ctx context.Context, cfg config.MQTTConfig, m *manager.Manager, readiness *api.Readiness, logger *slog.Logger) error {
	client := mqtt.NewClient(mqtt.Options{URL: cfg.URL, ClientID: cfg.ClientID, Logger: logger})
	params := mqtt.NewParamSync(cfg.TopicPrefix, m, logger)

	connected := client.StartWithRetry(params.Topic(), params.Handler())
	readiness.SetMQTTState(connected, false)
	defer client.Disconnect()

	publisher := mqtt.NewStatePublisher(cfg.TopicPrefix, client, m, logger)
	publisher.Start(100 * time.Millisecond)
	defer publisher.Stop()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !connected {
				// Paho only reconnects after a first successful connect.
				connected = client.StartWithRetry(params.Topic(), params.Handler())
			}
			readiness.SetMQTTState(connected && client.IsConnected(), false)
		}
	}
}

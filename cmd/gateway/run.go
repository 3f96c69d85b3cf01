package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/HsiangNianian/AMonItor/gateway/internal/config"
	"github.com/HsiangNianian/AMonItor/gateway/internal/store"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/dispatch"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/gateway"
	"github.com/HsiangNianian/AMonItor/gateway/pkg/protocol"
)

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, newLogger(cfg.Log))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a HuJSON config file")

	return cmd
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var ledger gateway.Ledger
	if cfg.Store.RedisAddr != "" {
		rs := store.NewRedisStore(cfg.Store.RedisAddr)
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Store.RedisAddr, err)
		}
		ledger = rs
		logger.Info("use redis command ledger", "addr", cfg.Store.RedisAddr)
	} else {
		ledger = store.NewMemoryStore()
		logger.Info("use memory command ledger")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracer, shutdownTracing := newTracing(cfg.Trace, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush spans failed", "err", err)
		}
	}()

	queueSize := cfg.Gateway.MaxQueueSize
	if queueSize == 0 {
		queueSize = -1
	}
	gw, err := gateway.New(gateway.Options{
		Host:           cfg.Gateway.Host,
		Token:          cfg.Gateway.Token,
		BasicAuth:      cfg.Gateway.BasicAuth,
		HTTP:           cfg.Gateway.HTTP,
		SSLVerify:      cfg.Gateway.SSLVerify,
		CABundle:       cfg.Gateway.SSLCABundle,
		MaxQueueSize:   queueSize,
		ConnectTimeout: cfg.Gateway.ConnectTimeout,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
		Backoff: gateway.Backoff{
			Initial:    cfg.Gateway.Backoff.Initial,
			Max:        cfg.Gateway.Backoff.Max,
			Multiplier: cfg.Gateway.Backoff.Multiplier,
			Jitter:     cfg.Gateway.Backoff.Jitter,
		},
		Logger:     logger,
		Registerer: reg,
		Tracer:     tracer,
		Ledger:     ledger,
		CommandTTL: cfg.Store.CommandTTL,
	})
	if err != nil {
		return err
	}
	registerDemoHandlers(gw, logger)

	announceCtx, stopAnnounce := context.WithCancel(ctx)
	defer stopAnnounce()
	go announceDefinitions(announceCtx, gw, logger)

	var ops *http.Server
	if cfg.Ops.ListenAddr != "" {
		ops = &http.Server{
			Addr:              cfg.Ops.ListenAddr,
			Handler:           opsRouter(gw, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ops server listening", "addr", cfg.Ops.ListenAddr)
			if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", "err", err)
			}
		}()
	}

	err = gw.ConnectWithRetries(ctx)
	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ops.Shutdown(shutdownCtx)
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("gateway stopped")
		return nil
	}
	return err
}

const demoSystem = "demo"

var demoDefinitions = map[string]protocol.CommandDefinition{
	"ping": {
		DisplayName: "Ping",
		Description: "Answers with pong",
		Fields:      []protocol.CommandDefinitionField{},
	},
}

// announceDefinitions sends the command definitions once the first session
// is live, so it works with queueing disabled.
func announceDefinitions(ctx context.Context, gw *gateway.Gateway, logger *slog.Logger) {
	if err := gw.WaitConnected(ctx); err != nil {
		return
	}
	if err := gw.UpdateCommandDefinitions(ctx, demoSystem, demoDefinitions); err != nil {
		logger.Warn("announce command definitions failed", "system", demoSystem, "err", err)
		return
	}
	logger.Info("command definitions announced", "system", demoSystem)
}

func registerDemoHandlers(gw *gateway.Gateway, logger *slog.Logger) {
	gw.HandleCommand(dispatch.Blocking(func(ctx context.Context, cmd protocol.Command) error {
		switch cmd.Type {
		case "ping":
			return gw.CompleteCommand(ctx, cmd.ID, "pong")
		default:
			return gw.FailCommand(ctx, cmd.ID, []string{fmt.Sprintf("unknown command %q", cmd.Type)})
		}
	}))
	gw.HandleTransit(dispatch.Blocking(func(_ context.Context, t protocol.Transit) error {
		logger.Info("transit scheduled", "satellite", t.SatelliteName, "start", t.ApproximateStart)
		return nil
	}))
}

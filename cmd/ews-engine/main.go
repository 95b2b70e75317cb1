package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-ews/internal/actuators"
	"github.com/miradorstack/mirador-ews/internal/api"
	"github.com/miradorstack/mirador-ews/internal/bus"
	"github.com/miradorstack/mirador-ews/internal/config"
	"github.com/miradorstack/mirador-ews/internal/engine"
	"github.com/miradorstack/mirador-ews/internal/metrics"
	"github.com/miradorstack/mirador-ews/internal/rest"
	"github.com/miradorstack/mirador-ews/internal/services"
	"github.com/miradorstack/mirador-ews/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("starting mirador-ews",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.HTTP.Address),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("mirador-ews exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("mirador-ews stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	shutdownTracer, err := initTracer(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisRequired() {
		redisClient, err = actuators.NewRedisClient(ctx, actuators.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			MaxRetries:   cfg.Redis.MaxRetries,
			TLS:          cfg.Redis.TLS,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	notifications := bus.New(
		bus.WithLogger(logger),
		bus.WithRecentSize(cfg.Bus.RecentSize),
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithTransports(transports(cfg, redisClient)...),
	)

	store, err := engine.NewSignalStore(cfg.Store.MaxSignals)
	if err != nil {
		return err
	}
	trigger := engine.NewTrigger(logger, guardrailPolicy(cfg.Guardrails), engine.Actuators{
		Autoscaler:  autoscaler(cfg, logger),
		RateLimiter: rateLimiter(cfg, logger),
		KillSwitch:  killSwitch(cfg, redisClient, logger),
		Publisher:   notifications,
	})
	monitor := services.NewMonitor(logger, engine.NewEarlyWarning(store), trigger, cfg.Guardrails.ObserveTimeout)

	grpcServer, err := api.NewServer(cfg.Server, services.NewEarlyWarningService(logger, monitor, notifications))
	if err != nil {
		return err
	}

	handlers := rest.NewHandlers(logger, monitor, notifications)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           rest.NewRouter(logger, handlers, promhttp.Handler(), cfg.Tracing.ServiceName),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
		return grpcServer.Start()
	})
	g.Go(func() error {
		logger.Info("http server listening", slog.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return notifications.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), grpcServer.GracefulTimeout())
		defer cancel()
		grpcServer.Shutdown(shutdownCtx)

		httpCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancelHTTP()
		if err := httpServer.Shutdown(httpCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func guardrailPolicy(cfg config.GuardrailsConfig) engine.GuardrailPolicy {
	return engine.GuardrailPolicy{
		AutoscaleBelow: cfg.AutoscaleBelow,
		RateLimitBelow: cfg.RateLimitBelow,
		BrownoutBelow:  cfg.BrownoutBelow,
		ScaleFactor:    cfg.ScaleFactor,
		MaxPerMinute:   cfg.MaxPerMinute,
		Timeout:        cfg.Timeout,
		Cooldown:       cfg.Cooldown,
	}
}

func autoscaler(cfg *config.Config, logger *slog.Logger) engine.Autoscaler {
	if ep := cfg.Actuators.Autoscaler; ep.URL != "" {
		return actuators.NewHTTPAutoscaler(ep.URL, ep.Timeout)
	}
	return actuators.NoopAutoscaler{Logger: logger}
}

func rateLimiter(cfg *config.Config, logger *slog.Logger) engine.RateLimiter {
	if ep := cfg.Actuators.RateLimiter; ep.URL != "" {
		return actuators.NewHTTPRateLimiter(ep.URL, ep.Timeout)
	}
	return actuators.NoopRateLimiter{Logger: logger}
}

func killSwitch(cfg *config.Config, client *redis.Client, logger *slog.Logger) engine.KillSwitch {
	ks := cfg.Actuators.KillSwitch
	if ks.Enabled && client != nil {
		return actuators.NewRedisKillSwitch(client, ks.Key, ks.Channel)
	}
	return actuators.NoopKillSwitch{Logger: logger}
}

func transports(cfg *config.Config, client *redis.Client) []bus.Transport {
	var out []bus.Transport
	if cfg.Bus.Channel != "" && client != nil {
		out = append(out, bus.NewRedisTransport(client, cfg.Bus.Channel))
	}
	if cfg.Bus.WebhookURL != "" {
		out = append(out, bus.NewWebhookTransport(cfg.Bus.WebhookURL, cfg.Bus.WebhookTimeout, cfg.Bus.WebhookRate, cfg.Bus.WebhookBurst))
	}
	return out
}

package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/psantana5/smartworking/pkg/auth"
	"github.com/psantana5/smartworking/pkg/config"
	"github.com/psantana5/smartworking/pkg/lifecycle"
	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/metrics"
	"github.com/psantana5/smartworking/pkg/notify"
	"github.com/psantana5/smartworking/pkg/retry"
	"github.com/psantana5/smartworking/pkg/store"
	"github.com/psantana5/smartworking/pkg/tracing"
)

// app holds the long-lived components built from a Config
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	store      store.Store
	metrics    *metrics.Collector
	dispatcher *notify.Dispatcher
	redis      *redis.Client
	engine     *lifecycle.Engine
	accounts   *auth.Service
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level: logging.ParseLevel(cfg.Logging.Level),
		JSON:  cfg.Logging.Format == "json",
	})
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	s, err := store.NewStore(ctx, store.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}
	return s, nil
}

func newSender(cfg *config.Config, logger *logging.Logger) (notify.Sender, error) {
	if cfg.Email.Sender != "smtp" {
		return notify.NewLogSender(logger.WithComponent("email")), nil
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:      cfg.Email.Host,
		Port:      cfg.Email.Port,
		Username:  cfg.Email.Username,
		Password:  cfg.Email.Password,
		From:      cfg.Email.From,
		FromName:  cfg.Email.FromName,
		TLSPolicy: cfg.Email.TLSPolicy,
		CAFile:    cfg.Email.CAFile,
		Timeout:   cfg.Email.Timeout,
	})
}

// buildApp wires store, notifications, lifecycle engine and account service.
// The dispatcher is created but not started. tracer may be nil.
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, tracer *tracing.Provider) (*app, error) {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: s}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(s)
	}

	var queue notify.Queue
	switch cfg.Notify.Queue {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Notify.Redis.Addr,
			Password: cfg.Notify.Redis.Password,
			DB:       cfg.Notify.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Notify.Redis.Addr, err)
		}
		queue = notify.NewRedisQueue(a.redis, cfg.Notify.Redis.Key, cfg.Notify.Buffer)
	default:
		queue = notify.NewChannelQueue(cfg.Notify.Buffer)
	}

	renderer, err := notify.NewRenderer(cfg.FrontendURL)
	if err != nil {
		a.close()
		return nil, err
	}
	sender, err := newSender(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	var recorder notify.Recorder
	if a.metrics != nil {
		recorder = a.metrics
	}
	a.dispatcher = notify.NewDispatcher(queue, renderer, sender, notify.DispatcherConfig{
		Workers:     cfg.Notify.Workers,
		SendTimeout: cfg.Notify.SendTimeout,
		Retry: retry.Config{
			MaxRetries:     cfg.Notify.MaxRetries,
			InitialBackoff: cfg.Notify.InitialBackoff,
			MaxBackoff:     cfg.Notify.MaxBackoff,
		},
	}, logger, recorder)

	jwtm, err := auth.NewJWTManager(auth.JWTConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.accounts = auth.NewService(s, jwtm, a.dispatcher, logger)

	var lifecycleRecorder lifecycle.Recorder
	if a.metrics != nil {
		lifecycleRecorder = a.metrics
	}
	a.engine = lifecycle.NewEngine(s, a.dispatcher, lifecycle.Config{
		ActionTokenTTL: cfg.Lifecycle.ActionTokenTTL,
		Tracer:         tracer,
	}, logger, lifecycleRecorder)

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

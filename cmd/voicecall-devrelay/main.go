package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/auth"
	"github.com/eisenzopf/webrtc-client/internal/config"
	"github.com/eisenzopf/webrtc-client/internal/devrelay"
	"github.com/eisenzopf/webrtc-client/internal/httpserver"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/origin"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.LoadDevRelay(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("voicecall-devrelay exited")
		os.Exit(1)
	}
}

func run(cfg config.DevRelayConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		presence devrelay.Presence = devrelay.NewMemoryPresence()
		rdb      *redis.Client
	)
	if cfg.RedisAddr != "" {
		c, err := devrelay.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rdb = c
		defer rdb.Close()
		presence = devrelay.NewRedisPresence(rdb, devrelay.DefaultPresenceTTL)
	}

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Int("room_capacity", cfg.RoomCapacity).
		Bool("redis_presence", rdb != nil).
		Bool("token_required", cfg.Token != "").
		Str("mode", string(cfg.Mode)).
		Msg("starting voicecall-devrelay")

	var origins *origin.Policy
	if len(cfg.AllowedOrigins) > 0 {
		p, err := origin.NewPolicy(cfg.AllowedOrigins)
		if err != nil {
			return err
		}
		origins = &p
	}

	m := metrics.New()
	relay := devrelay.New(devrelay.Options{
		RoomCapacity:    cfg.RoomCapacity,
		MaxMessageBytes: cfg.MaxMessageBytes,
		PingInterval:    cfg.PingInterval,
		Presence:        presence,
		Origins:         origins,
		Token:           auth.NewToken(cfg.Token),
		Logger:          logger,
		Metrics:         m,
	})

	srv := httpserver.New(httpserver.Options{
		Addr:    cfg.ListenAddr,
		Logger:  logger,
		Build:   httpserver.ResolveBuildInfo(buildCommit, buildTime),
		Metrics: m,
		Ready: func() error {
			if rdb == nil {
				return nil
			}
			return rdb.Ping(context.Background()).Err()
		},
	})
	relay.Mount(srv.Router())

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		relay.Close()
		if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Upgraded sockets are not tracked by http.Server; close them first.
	relay.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := <-errCh; err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
		return fmt.Errorf("http server exited after shutdown: %w", err)
	}
	return nil
}

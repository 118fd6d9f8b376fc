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

	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/auth"
	"github.com/eisenzopf/webrtc-client/internal/config"
	"github.com/eisenzopf/webrtc-client/internal/httpserver"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/origin"
	"github.com/eisenzopf/webrtc-client/internal/session"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
	"github.com/eisenzopf/webrtc-client/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

var errRelayNotConnected = errors.New("relay not connected")

func main() {
	cfg, err := config.Load(os.Args[1:])
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
		logger.Error().Err(err).Msg("voicecall exited")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	m := metrics.New()

	// Construct the WebRTC API early so misconfigurations are caught on startup.
	settings := media.Settings{LoggerFactory: media.NewLoggerFactory(logger)}
	if r := cfg.WebRTCUDPPortRange; r != nil {
		settings.UDPPortMin, settings.UDPPortMax = r.Min, r.Max
	}
	api, err := media.NewAPI(settings)
	if err != nil {
		return fmt.Errorf("configure webrtc: %w", err)
	}
	factoryOpts := media.FactoryOptions{
		ICEServers: cfg.ICEServers,
		Playback:   audio.DiscardPlayback{},
		Logger:     logger,
		Metrics:    m,
	}
	if cfg.TURNREST.Enabled() {
		gen, err := turnrest.NewGenerator(turnrest.Config{
			SharedSecret: cfg.TURNREST.SharedSecret,
			TTL:          cfg.TURNREST.TTL,
			Prefix:       cfg.PeerID,
		})
		if err != nil {
			return fmt.Errorf("configure turn rest credentials: %w", err)
		}
		factoryOpts.Credentials = gen
	}
	factory := media.NewFactory(api, factoryOpts)

	orch := session.New(session.Config{
		RelayURL:             cfg.RelayURL,
		RoomID:               cfg.RoomID,
		PeerID:               cfg.PeerID,
		RoomCapacity:         cfg.RoomCapacity,
		ReconnectMaxAttempts: cfg.ReconnectMaxAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
		DialTimeout:          cfg.DialTimeout,
		QualityInterval:      cfg.QualityInterval,
	}, session.Options{
		Dialer: session.SignalingDialer(signaling.Options{
			SendQueueSize:       cfg.SignalingSendQueueSize,
			RecvQueueSize:       cfg.SignalingRecvQueueSize,
			WriteTimeout:        cfg.SignalingWriteTimeout,
			PingInterval:        cfg.SignalingWSPingInterval,
			MaxMessageBytes:     cfg.MaxSignalingMessageBytes,
			MaxInboundPerSecond: cfg.MaxSignalingMessagesPerSecond,
			Logger:              logger,
			Metrics:             m,
		}),
		Media:   session.PionMedia(factory),
		Capture: audio.SilenceCapture{},
		Logger:  logger,
		Metrics: m,
	})

	logger.Info().
		Str("relay_url", cfg.RelayURL).
		Str("room_id", cfg.RoomID).
		Str("peer_id", cfg.PeerID).
		Str("mode", string(cfg.Mode)).
		Str("control_listen_addr", cfg.ControlListenAddr).
		Int("ice_servers", len(cfg.ICEServers)).
		Bool("turn_rest", cfg.TURNREST.Enabled()).
		Msg("starting voicecall")
	logStartupWarnings(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		if err := orch.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("orchestrator stopped")
		}
	}()
	<-orch.Started()

	// A failed first dial is surfaced in the view; the control API can retry.
	if err := orch.Connect(ctx, "", ""); err != nil {
		logger.Warn().Err(err).Msg("initial relay connection failed")
	}

	var srv *httpserver.Server
	errCh := make(chan error, 1)
	if cfg.ControlListenAddr != "" {
		allow, err := origin.NewPolicy(cfg.ControlAllowedOrigins)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", cfg.ControlListenAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		srv = httpserver.New(httpserver.Options{
			Addr:    cfg.ControlListenAddr,
			Logger:  logger,
			Build:   httpserver.ResolveBuildInfo(buildCommit, buildTime),
			Metrics: m,
			Ready: func() error {
				if !orch.View().RelayConnected {
					return errRelayNotConnected
				}
				return nil
			},
		})
		httpserver.MountControl(srv.Router(), orch, httpserver.ControlOptions{
			Logger:  logger,
			Origins: allow,
			Token:   auth.NewToken(cfg.ControlToken),
		})
		go func() { errCh <- srv.Serve(ln) }()
	}

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			serveErr = fmt.Errorf("control server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil && serveErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("control server shutdown failed")
		}
	}

	// Stopping the loop ends any call and tells the relay.
	cancelRun()
	select {
	case <-orch.Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("orchestrator did not stop before the shutdown timeout")
	}
	return serveErr
}

package main

import (
	"net"
	"net/url"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/config"
	"github.com/eisenzopf/webrtc-client/internal/turnrest"
)

func logStartupWarnings(logger zerolog.Logger, cfg config.Config) {
	if cfg.ControlListenAddr != "" && cfg.ControlToken == "" && !isLoopbackAddr(cfg.ControlListenAddr) {
		logger.Warn().
			Str("warning_code", "control_listen_non_loopback").
			Str("control_listen_addr", cfg.ControlListenAddr).
			Str("mode", string(cfg.Mode)).
			Msg("startup warning: the control API has no authentication and is listening on a non-loopback address")
	}

	if cfg.Mode == config.ModeProd && !hasTURN(cfg.ICEServers) {
		logger.Warn().
			Str("warning_code", "no_turn_servers_in_prod").
			Int("ice_servers", len(cfg.ICEServers)).
			Str("mode", string(cfg.Mode)).
			Msg("startup warning: no TURN server configured while --mode=prod; calls between peers behind symmetric NATs will fail")
	}

	for _, o := range cfg.ControlAllowedOrigins {
		if o == "*" {
			logger.Warn().
				Str("warning_code", "control_allowed_origins_wildcard").
				Strs("control_allowed_origins", cfg.ControlAllowedOrigins).
				Str("mode", string(cfg.Mode)).
				Msg("startup warning: control API allows any browser origin; any web page can place calls")
			break
		}
	}

	if cfg.Mode == config.ModeProd && strings.EqualFold(relayScheme(cfg.RelayURL), "ws") {
		logger.Warn().
			Str("warning_code", "relay_url_unencrypted_in_prod").
			Str("relay_host", relayHost(cfg.RelayURL)).
			Str("mode", string(cfg.Mode)).
			Msg("startup warning: relay URL uses ws:// while --mode=prod; signaling is unencrypted")
	}

	if cfg.MaxSignalingMessagesPerSecond <= 0 {
		logger.Warn().
			Str("warning_code", "signaling_rate_limit_disabled").
			Int("max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond).
			Str("mode", string(cfg.Mode)).
			Msg("startup warning: inbound signaling rate limit is disabled")
	}
}

func hasTURN(servers []webrtc.ICEServer) bool {
	for _, s := range servers {
		if turnrest.IsTURN(s) {
			return true
		}
	}
	return false
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func relayScheme(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Scheme
}

func relayHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return u.Host
}

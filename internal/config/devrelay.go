package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eisenzopf/webrtc-client/internal/origin"
)

const (
	envVarDevRelayListenAddr   = "VOICECALL_DEVRELAY_LISTEN_ADDR"
	envVarDevRelayRoomCapacity = "VOICECALL_DEVRELAY_ROOM_CAPACITY"
	envVarDevRelayRedisAddr    = "VOICECALL_DEVRELAY_REDIS_ADDR"
	envVarDevRelayPingInterval = "VOICECALL_DEVRELAY_WS_PING_INTERVAL"
	envVarDevRelayOrigins      = "VOICECALL_DEVRELAY_ALLOWED_ORIGINS"
	envVarDevRelayToken        = "VOICECALL_DEVRELAY_TOKEN"

	DefaultDevRelayListenAddr = "127.0.0.1:8080"
)

// DevRelayConfig configures the development signaling relay.
type DevRelayConfig struct {
	Logging
	ShutdownTimeout time.Duration

	ListenAddr   string
	RoomCapacity int
	// RedisAddr enables the redis presence store when set.
	RedisAddr string

	MaxMessageBytes int64
	PingInterval    time.Duration
	// AllowedOrigins restricts browser websocket upgrades. Empty admits any
	// origin.
	AllowedOrigins []string
	// Token, when set, must be presented by connecting clients as a bearer
	// header or a token query parameter.
	Token string
}

func LoadDevRelay(args []string) (DevRelayConfig, error) {
	return loadDevRelay(os.LookupEnv, args)
}

func loadDevRelay(lookup func(string) (string, bool), args []string) (DevRelayConfig, error) {
	logDefs := loadLogDefaults(lookup)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return DevRelayConfig{}, err
	}
	listenAddr := envOrDefault(lookup, envVarDevRelayListenAddr, DefaultDevRelayListenAddr)
	redisAddr := envOrDefault(lookup, envVarDevRelayRedisAddr, "")
	roomCapacity, err := envIntOrDefault(lookup, envVarDevRelayRoomCapacity, DefaultRoomCapacity)
	if err != nil {
		return DevRelayConfig{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarDevRelayPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return DevRelayConfig{}, err
	}
	maxMessageBytes := DefaultMaxSignalingMessageBytes
	allowedOrigins := envOrDefault(lookup, envVarDevRelayOrigins, "")
	token := envOrDefault(lookup, envVarDevRelayToken, "")

	fs := flag.NewFlagSet("voicecall-devrelay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var modeStr, logFormatStr, logLevelStr string
	registerLoggingFlags(fs, logDefs, &modeStr, &logFormatStr, &logLevelStr)
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarDevRelayListenAddr+")")
	fs.IntVar(&roomCapacity, "room-capacity", roomCapacity, "Maximum peers per room (env "+envVarDevRelayRoomCapacity+")")
	fs.StringVar(&redisAddr, "redis-addr", redisAddr, "Redis address for room presence; empty keeps presence in memory (env "+envVarDevRelayRedisAddr+")")
	fs.DurationVar(&pingInterval, "ws-ping-interval", pingInterval, "WebSocket ping interval (0 disables keepalive)")
	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound message size in bytes")
	fs.StringVar(&allowedOrigins, "allowed-origins", allowedOrigins, "Comma-separated browser origins allowed to connect; empty allows any (env "+envVarDevRelayOrigins+")")
	fs.StringVar(&token, "token", token, "Token clients must present; empty disables (env "+envVarDevRelayToken+")")

	if err := fs.Parse(args); err != nil {
		return DevRelayConfig{}, err
	}

	logging, err := parseLogging(modeStr, logFormatStr, logLevelStr)
	if err != nil {
		return DevRelayConfig{}, err
	}
	listenAddr = strings.TrimSpace(listenAddr)
	if listenAddr == "" {
		return DevRelayConfig{}, fmt.Errorf("%s/--listen-addr must not be empty", envVarDevRelayListenAddr)
	}
	if roomCapacity <= 0 {
		return DevRelayConfig{}, fmt.Errorf("%s/--room-capacity must be > 0 (got %d)", envVarDevRelayRoomCapacity, roomCapacity)
	}
	if pingInterval < 0 {
		return DevRelayConfig{}, fmt.Errorf("--ws-ping-interval must be >= 0 (got %s)", pingInterval)
	}
	if maxMessageBytes <= 0 {
		return DevRelayConfig{}, fmt.Errorf("--max-message-bytes must be > 0 (got %d)", maxMessageBytes)
	}
	if shutdownTimeout <= 0 {
		return DevRelayConfig{}, fmt.Errorf("--shutdown-timeout must be > 0 (got %s)", shutdownTimeout)
	}
	origins := splitCommaSeparated(allowedOrigins)
	if _, err := origin.NewPolicy(origins); err != nil {
		return DevRelayConfig{}, fmt.Errorf("%s/--allowed-origins: %w", envVarDevRelayOrigins, err)
	}

	return DevRelayConfig{
		Logging:         logging,
		ShutdownTimeout: shutdownTimeout,
		ListenAddr:      listenAddr,
		RoomCapacity:    roomCapacity,
		RedisAddr:       strings.TrimSpace(redisAddr),
		MaxMessageBytes: maxMessageBytes,
		PingInterval:    pingInterval,
		AllowedOrigins:  origins,
		Token:           strings.TrimSpace(token),
	}, nil
}

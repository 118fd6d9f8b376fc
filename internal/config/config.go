package config

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/origin"
)

const (
	envVarMode            = "VOICECALL_MODE"
	envVarLogFormat       = "VOICECALL_LOG_FORMAT"
	envVarLogLevel        = "VOICECALL_LOG_LEVEL"
	envVarShutdownTimeout = "VOICECALL_SHUTDOWN_TIMEOUT"

	// Relay and room.
	envVarRelayURL     = "VOICECALL_RELAY_URL"
	envVarRoomID       = "VOICECALL_ROOM_ID"
	envVarPeerID       = "VOICECALL_PEER_ID"
	envVarRoomCapacity = "VOICECALL_ROOM_CAPACITY"

	// Reconnection and sampling.
	envVarReconnectMaxAttempts = "VOICECALL_RECONNECT_MAX_ATTEMPTS"
	envVarReconnectDelay       = "VOICECALL_RECONNECT_DELAY"
	envVarDialTimeout          = "VOICECALL_DIAL_TIMEOUT"
	envVarQualityInterval      = "VOICECALL_QUALITY_INTERVAL"

	// Signaling client hardening.
	envVarSignalingSendQueueSize        = "VOICECALL_SIGNALING_SEND_QUEUE_SIZE"
	envVarSignalingRecvQueueSize        = "VOICECALL_SIGNALING_RECV_QUEUE_SIZE"
	envVarSignalingWriteTimeout         = "VOICECALL_SIGNALING_WRITE_TIMEOUT"
	envVarSignalingWSPingInterval       = "VOICECALL_SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "VOICECALL_MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "VOICECALL_MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarControlListenAddr             = "VOICECALL_CONTROL_LISTEN_ADDR"
	envVarControlAllowedOrigins         = "VOICECALL_CONTROL_ALLOWED_ORIGINS"
	envVarControlToken                  = "VOICECALL_CONTROL_TOKEN"
	envVarWebRTCUDPPortMin              = "VOICECALL_WEBRTC_UDP_PORT_MIN"
	envVarWebRTCUDPPortMax              = "VOICECALL_WEBRTC_UDP_PORT_MAX"

	DefaultMode              Mode = ModeDev
	DefaultShutdown               = 15 * time.Second
	DefaultRelayURL               = "ws://127.0.0.1:8080"
	DefaultRoomID                 = "test-room"
	DefaultRoomCapacity           = 8
	DefaultControlListenAddr      = "127.0.0.1:7070"

	DefaultReconnectMaxAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultQualityInterval      = time.Second

	DefaultSignalingSendQueueSize        = 100
	DefaultSignalingRecvQueueSize        = 100
	DefaultSignalingWriteTimeout         = 5 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
)

const (
	flagWebRTCUDPPortMin = "webrtc-udp-port-min"
	flagWebRTCUDPPortMax = "webrtc-udp-port-max"
)

// recommendedWebRTCUDPPortRangeSize is a conservative minimum. A call can use
// several ports per ICE agent, and running out shows up as failed
// connectivity checks.
const recommendedWebRTCUDPPortRangeSize = 16

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type UDPPortRange struct {
	Min uint16
	Max uint16
}

// Logging is shared by every binary in this module.
type Logging struct {
	Mode      Mode
	LogFormat LogFormat
	LogLevel  zerolog.Level
}

// Config is the voice-call client configuration.
type Config struct {
	Logging
	ShutdownTimeout time.Duration

	RelayURL     string
	RoomID       string
	PeerID       string
	RoomCapacity int

	ReconnectMaxAttempts int
	ReconnectDelay       time.Duration
	DialTimeout          time.Duration
	QualityInterval      time.Duration

	SignalingSendQueueSize        int
	SignalingRecvQueueSize        int
	SignalingWriteTimeout         time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// ControlListenAddr is the local control API address. Empty disables it.
	ControlListenAddr string
	// ControlAllowedOrigins lists browser origins admitted besides same-host
	// pages.
	ControlAllowedOrigins []string
	// ControlToken, when set, is required as a bearer token by the control
	// API.
	ControlToken string

	ICEServers []webrtc.ICEServer
	TURNREST   TURNREST

	// WebRTCUDPPortRange restricts the UDP ports used for ICE. When nil, pion
	// uses OS ephemeral port selection.
	WebRTCUDPPortRange *UDPPortRange
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	logDefs := loadLogDefaults(lookup)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	relayURL := envOrDefault(lookup, envVarRelayURL, DefaultRelayURL)
	roomID := envOrDefault(lookup, envVarRoomID, DefaultRoomID)
	peerID := envOrDefault(lookup, envVarPeerID, "")
	controlListenAddr := envOrDefault(lookup, envVarControlListenAddr, DefaultControlListenAddr)
	controlAllowedOrigins := envOrDefault(lookup, envVarControlAllowedOrigins, "")
	controlToken := envOrDefault(lookup, envVarControlToken, "")
	roomCapacity, err := envIntOrDefault(lookup, envVarRoomCapacity, DefaultRoomCapacity)
	if err != nil {
		return Config{}, err
	}

	reconnectMaxAttempts, err := envIntOrDefault(lookup, envVarReconnectMaxAttempts, DefaultReconnectMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	reconnectDelay, err := envDurationOrDefault(lookup, envVarReconnectDelay, DefaultReconnectDelay)
	if err != nil {
		return Config{}, err
	}
	dialTimeout, err := envDurationOrDefault(lookup, envVarDialTimeout, DefaultDialTimeout)
	if err != nil {
		return Config{}, err
	}
	qualityInterval, err := envDurationOrDefault(lookup, envVarQualityInterval, DefaultQualityInterval)
	if err != nil {
		return Config{}, err
	}

	sendQueueSize, err := envIntOrDefault(lookup, envVarSignalingSendQueueSize, DefaultSignalingSendQueueSize)
	if err != nil {
		return Config{}, err
	}
	recvQueueSize, err := envIntOrDefault(lookup, envVarSignalingRecvQueueSize, DefaultSignalingRecvQueueSize)
	if err != nil {
		return Config{}, err
	}
	writeTimeout, err := envDurationOrDefault(lookup, envVarSignalingWriteTimeout, DefaultSignalingWriteTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")
	turnRESTSecret := envOrDefault(lookup, envTurnRESTSharedSecret, "")
	turnRESTTTL, err := envDurationOrDefault(lookup, envTurnRESTTTL, DefaultTURNRESTTTL)
	if err != nil {
		return Config{}, err
	}

	// WebRTC network defaults (env values become flag defaults).
	var webrtcUDPPortMin uint
	if raw, ok := lookup(envVarWebRTCUDPPortMin); ok && strings.TrimSpace(raw) != "" {
		p, err := parsePortString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarWebRTCUDPPortMin, raw, err)
		}
		webrtcUDPPortMin = uint(p)
	}
	var webrtcUDPPortMax uint
	if raw, ok := lookup(envVarWebRTCUDPPortMax); ok && strings.TrimSpace(raw) != "" {
		p, err := parsePortString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarWebRTCUDPPortMax, raw, err)
		}
		webrtcUDPPortMax = uint(p)
	}

	fs := flag.NewFlagSet("voicecall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var modeStr, logFormatStr, logLevelStr string
	registerLoggingFlags(fs, logDefs, &modeStr, &logFormatStr, &logLevelStr)
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.StringVar(&relayURL, "relay-url", relayURL, "Signaling relay WebSocket URL (env "+envVarRelayURL+")")
	fs.StringVar(&roomID, "room", roomID, "Room to join (env "+envVarRoomID+")")
	fs.StringVar(&peerID, "peer-id", peerID, "Local peer ID (default user-<random>; env "+envVarPeerID+")")
	fs.IntVar(&roomCapacity, "room-capacity", roomCapacity, "Maximum peers tracked in the room roster")
	fs.StringVar(&controlListenAddr, "control-listen-addr", controlListenAddr, "Control API listen address; empty disables (env "+envVarControlListenAddr+")")
	fs.StringVar(&controlAllowedOrigins, "control-allowed-origins", controlAllowedOrigins, "Comma-separated browser origins allowed to use the control API besides same-host pages (env "+envVarControlAllowedOrigins+")")
	fs.StringVar(&controlToken, "control-token", controlToken, "Bearer token required by the control API; empty disables (env "+envVarControlToken+")")

	fs.IntVar(&reconnectMaxAttempts, "reconnect-max-attempts", reconnectMaxAttempts, "Relay reconnect attempts before giving up")
	fs.DurationVar(&reconnectDelay, "reconnect-delay", reconnectDelay, "Delay before each relay reconnect attempt")
	fs.DurationVar(&dialTimeout, "dial-timeout", dialTimeout, "Relay dial timeout")
	fs.DurationVar(&qualityInterval, "quality-interval", qualityInterval, "Call quality sampling interval")

	fs.IntVar(&sendQueueSize, "signaling-send-queue-size", sendQueueSize, "Outbound signaling messages buffered per connection")
	fs.IntVar(&recvQueueSize, "signaling-recv-queue-size", recvQueueSize, "Inbound signaling messages buffered per connection")
	fs.DurationVar(&writeTimeout, "signaling-write-timeout", writeTimeout, "Signaling WebSocket write timeout")
	fs.DurationVar(&pingInterval, "signaling-ws-ping-interval", pingInterval, "Signaling WebSocket ping interval (0 disables keepalive)")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling message size in bytes")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max inbound signaling messages per second (0 = unlimited)")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.StringVar(&turnRESTSecret, "turn-rest-shared-secret", turnRESTSecret, "coturn shared secret for per-call TURN credentials ("+envTurnRESTSharedSecret+")")
	fs.DurationVar(&turnRESTTTL, "turn-rest-ttl", turnRESTTTL, "Lifetime of generated TURN credentials ("+envTurnRESTTTL+")")
	fs.UintVar(&webrtcUDPPortMin, flagWebRTCUDPPortMin, webrtcUDPPortMin, "Min UDP port for WebRTC ICE (0 = unset; env "+envVarWebRTCUDPPortMin+")")
	fs.UintVar(&webrtcUDPPortMax, flagWebRTCUDPPortMax, webrtcUDPPortMax, "Max UDP port for WebRTC ICE (0 = unset; env "+envVarWebRTCUDPPortMax+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	logging, err := parseLogging(modeStr, logFormatStr, logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if err := validateWSURL(relayURL); err != nil {
		return Config{}, fmt.Errorf("invalid %s/--relay-url %q: %w", envVarRelayURL, relayURL, err)
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Config{}, fmt.Errorf("%s/--room must not be empty", envVarRoomID)
	}
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		peerID = DefaultPeerID()
	}
	if roomCapacity <= 0 {
		return Config{}, fmt.Errorf("--room-capacity must be > 0 (got %d)", roomCapacity)
	}
	if reconnectMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("%s/--reconnect-max-attempts must be > 0 (got %d)", envVarReconnectMaxAttempts, reconnectMaxAttempts)
	}
	for name, d := range map[string]time.Duration{
		"--reconnect-delay":         reconnectDelay,
		"--dial-timeout":            dialTimeout,
		"--quality-interval":        qualityInterval,
		"--signaling-write-timeout": writeTimeout,
		"--shutdown-timeout":        shutdownTimeout,
	} {
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be > 0 (got %s)", name, d)
		}
	}
	if pingInterval < 0 {
		return Config{}, fmt.Errorf("--signaling-ws-ping-interval must be >= 0 (got %s)", pingInterval)
	}
	if sendQueueSize <= 0 || recvQueueSize <= 0 {
		return Config{}, fmt.Errorf("signaling queue sizes must be > 0 (got send=%d recv=%d)", sendQueueSize, recvQueueSize)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("--max-signaling-message-bytes must be > 0 (got %d)", maxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond < 0 {
		return Config{}, fmt.Errorf("--max-signaling-messages-per-second must be >= 0 (got %d)", maxSignalingMessagesPerSecond)
	}

	turnREST := TURNREST{SharedSecret: strings.TrimSpace(turnRESTSecret), TTL: turnRESTTTL}
	if turnREST.Enabled() && turnRESTTTL < time.Second {
		return Config{}, fmt.Errorf("--turn-rest-ttl must be >= 1s (got %s)", turnRESTTTL)
	}
	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential, turnREST.Enabled())
	if err != nil {
		return Config{}, err
	}
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers()
	}

	portRange, err := parsePortRange(webrtcUDPPortMin, webrtcUDPPortMax)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins := splitCommaSeparated(controlAllowedOrigins)
	if _, err := origin.NewPolicy(allowedOrigins); err != nil {
		return Config{}, fmt.Errorf("%s/--control-allowed-origins: %w", envVarControlAllowedOrigins, err)
	}

	return Config{
		Logging:                       logging,
		ShutdownTimeout:               shutdownTimeout,
		RelayURL:                      strings.TrimSpace(relayURL),
		RoomID:                        roomID,
		PeerID:                        peerID,
		RoomCapacity:                  roomCapacity,
		ReconnectMaxAttempts:          reconnectMaxAttempts,
		ReconnectDelay:                reconnectDelay,
		DialTimeout:                   dialTimeout,
		QualityInterval:               qualityInterval,
		SignalingSendQueueSize:        sendQueueSize,
		SignalingRecvQueueSize:        recvQueueSize,
		SignalingWriteTimeout:         writeTimeout,
		SignalingWSPingInterval:       pingInterval,
		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
		ControlListenAddr:             strings.TrimSpace(controlListenAddr),
		ControlAllowedOrigins:         allowedOrigins,
		ControlToken:                  strings.TrimSpace(controlToken),
		ICEServers:                    iceServers,
		TURNREST:                      turnREST,
		WebRTCUDPPortRange:            portRange,
	}, nil
}

// DefaultPeerID returns a fresh "user-xxxxxxxx" identifier.
func DefaultPeerID() string {
	return "user-" + uuid.NewString()[:8]
}

type logDefaults struct {
	mode, format, level string
}

func loadLogDefaults(lookup func(string) (string, bool)) logDefaults {
	envMode, _ := lookup(envVarMode)
	d := logDefaults{mode: string(DefaultMode)}
	if envMode != "" {
		d.mode = envMode
	}
	d.format = envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(d.mode))
	d.level = envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(d.mode))
	return d
}

func registerLoggingFlags(fs *flag.FlagSet, d logDefaults, mode, format, level *string) {
	fs.StringVar(mode, "mode", d.mode, "Run mode: dev or prod")
	fs.StringVar(format, "log-format", d.format, "Log format: text or json")
	fs.StringVar(level, "log-level", d.level, "Log level: debug, info, warn, error")
}

func parseLogging(modeStr, formatStr, levelStr string) (Logging, error) {
	mode, err := parseMode(modeStr)
	if err != nil {
		return Logging{}, err
	}
	format, err := parseLogFormat(formatStr)
	if err != nil {
		return Logging{}, err
	}
	level, err := parseLogLevel(levelStr)
	if err != nil {
		return Logging{}, err
	}
	return Logging{Mode: mode, LogFormat: format, LogLevel: level}, nil
}

// NewLogger builds the process logger on stdout.
func NewLogger(cfg Logging) (zerolog.Logger, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Logging, out io.Writer) (zerolog.Logger, error) {
	var w io.Writer
	switch cfg.LogFormat {
	case LogFormatText:
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case LogFormatJSON:
		w = out
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}
	return zerolog.New(w).Level(cfg.LogLevel).With().Timestamp().Logger(), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func validateWSURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	default:
		return fmt.Errorf("expected ws:// or wss://")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func parsePortRange(min, max uint) (*UDPPortRange, error) {
	if min == 0 && max == 0 {
		return nil, nil
	}
	if (min == 0) != (max == 0) {
		return nil, fmt.Errorf("%s and %s must be set together (or both unset)", "--"+flagWebRTCUDPPortMin, "--"+flagWebRTCUDPPortMax)
	}
	lo, err := parsePortUint(min)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", envVarWebRTCUDPPortMin, "--"+flagWebRTCUDPPortMin, err)
	}
	hi, err := parsePortUint(max)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", envVarWebRTCUDPPortMax, "--"+flagWebRTCUDPPortMax, err)
	}
	if lo > hi {
		return nil, fmt.Errorf("WebRTC UDP port range min (%d) must be <= max (%d)", lo, hi)
	}
	if size := int(hi) - int(lo) + 1; size < recommendedWebRTCUDPPortRangeSize {
		return nil, fmt.Errorf("WebRTC UDP port range is too small: %d ports (min %d recommended)", size, recommendedWebRTCUDPPortRangeSize)
	}
	return &UDPPortRange{Min: lo, Max: hi}, nil
}

func parsePortString(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return parsePortUint(uint(v))
}

func parsePortUint(v uint) (uint16, error) {
	if v == 0 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range (1-65535)", v)
	}
	return uint16(v), nil
}

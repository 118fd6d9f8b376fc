package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeDev, cfg.Mode)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, DefaultRelayURL, cfg.RelayURL)
	assert.Equal(t, DefaultRoomID, cfg.RoomID)
	assert.Regexp(t, `^user-[0-9a-f]{8}$`, cfg.PeerID)
	assert.Equal(t, DefaultRoomCapacity, cfg.RoomCapacity)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, time.Second, cfg.QualityInterval)
	assert.Equal(t, 100, cfg.SignalingSendQueueSize)
	assert.Equal(t, 100, cfg.SignalingRecvQueueSize)
	assert.Equal(t, DefaultControlListenAddr, cfg.ControlListenAddr)
	assert.Nil(t, cfg.WebRTCUDPPortRange)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{DefaultSTUNURL}, cfg.ICEServers[0].URLs)
}

func TestDefaultsProd(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "prod"}), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeProd, cfg.Mode)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestFlagsOverrideEnv(t *testing.T) {
	env := lookupMap(map[string]string{
		envVarRelayURL:             "ws://env.example:9000",
		envVarRoomID:               "env-room",
		envVarPeerID:               "alice",
		envVarReconnectMaxAttempts: "3",
		envVarReconnectDelay:       "250ms",
	})
	cfg, err := load(env, []string{"--room", "flag-room", "--reconnect-delay", "2s", "--control-listen-addr", ""})
	require.NoError(t, err)

	assert.Equal(t, "ws://env.example:9000", cfg.RelayURL)
	assert.Equal(t, "flag-room", cfg.RoomID)
	assert.Equal(t, "alice", cfg.PeerID)
	assert.Equal(t, 3, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Empty(t, cfg.ControlListenAddr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "relay scheme", args: []string{"--relay-url", "http://relay"}, want: "ws://"},
		{name: "relay host", args: []string{"--relay-url", "ws://"}, want: "missing host"},
		{name: "empty room", args: []string{"--room", " "}, want: "must not be empty"},
		{name: "zero attempts", args: []string{"--reconnect-max-attempts", "0"}, want: "reconnect-max-attempts"},
		{name: "zero delay", args: []string{"--reconnect-delay", "0s"}, want: "--reconnect-delay"},
		{name: "negative rate", args: []string{"--max-signaling-messages-per-second", "-1"}, want: "messages-per-second"},
		{name: "bad env duration", env: map[string]string{envVarQualityInterval: "soon"}, want: envVarQualityInterval},
		{name: "bad env int", env: map[string]string{envVarRoomCapacity: "many"}, want: envVarRoomCapacity},
		{name: "bad log level", args: []string{"--log-level", "loud"}, want: "invalid log level"},
		{name: "bad mode", args: []string{"--mode", "staging"}, want: "invalid mode"},
		{name: "half port range", args: []string{"--webrtc-udp-port-min", "50000"}, want: "must be set together"},
		{name: "inverted port range", args: []string{"--webrtc-udp-port-min", "50100", "--webrtc-udp-port-max", "50000"}, want: "must be <= max"},
		{name: "tiny port range", args: []string{"--webrtc-udp-port-min", "50000", "--webrtc-udp-port-max", "50001"}, want: "too small"},
		{name: "turn without creds", args: []string{"--turn-urls", "turn:turn.example.com"}, want: "both must be set"},
		{name: "bad allowed origin", args: []string{"--control-allowed-origins", "localhost:5173"}, want: envVarControlAllowedOrigins},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestControlAllowedOrigins(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarControlAllowedOrigins: "http://localhost:5173, https://ui.example.com ,",
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:5173", "https://ui.example.com"}, cfg.ControlAllowedOrigins)
}

func TestPortRange(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarWebRTCUDPPortMin: "50000",
		envVarWebRTCUDPPortMax: "50099",
	}), nil)
	require.NoError(t, err)
	require.NotNil(t, cfg.WebRTCUDPPortRange)
	assert.Equal(t, UDPPortRange{Min: 50000, Max: 50099}, *cfg.WebRTCUDPPortRange)
}

func TestConfiguredICEServersReplaceDefault(t *testing.T) {
	cfg, err := load(noEnv, []string{"--stun-urls", "stun:a.example:3478,stun:b.example:3478"})
	require.NoError(t, err)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.ICEServers[0].URLs)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(Logging{LogFormat: LogFormatJSON, LogLevel: zerolog.InfoLevel}, &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("room_id", "r1").Msg("joined")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"room_id":"r1"`)
	assert.Contains(t, out, `"message":"joined"`)

	buf.Reset()
	log, err = newLogger(Logging{LogFormat: LogFormatText, LogLevel: zerolog.DebugLevel}, &buf)
	require.NoError(t, err)
	log.Debug().Msg("visible")
	assert.True(t, strings.Contains(buf.String(), "visible"))

	_, err = newLogger(Logging{LogFormat: "xml"}, &buf)
	assert.Error(t, err)
}

func TestLoadDevRelay(t *testing.T) {
	cfg, err := loadDevRelay(lookupMap(map[string]string{
		envVarDevRelayRedisAddr: "127.0.0.1:6379",
	}), []string{"--room-capacity", "4"})
	require.NoError(t, err)

	assert.Equal(t, DefaultDevRelayListenAddr, cfg.ListenAddr)
	assert.Equal(t, 4, cfg.RoomCapacity)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, DefaultMaxSignalingMessageBytes, cfg.MaxMessageBytes)

	assert.Empty(t, cfg.AllowedOrigins)

	_, err = loadDevRelay(noEnv, []string{"--room-capacity", "0"})
	assert.Error(t, err)

	cfg, err = loadDevRelay(noEnv, []string{"--allowed-origins", "http://localhost:3000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)

	_, err = loadDevRelay(noEnv, []string{"--allowed-origins", "ftp://x"})
	assert.Error(t, err)
}

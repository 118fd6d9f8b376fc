// Package media binds a call to pion/webrtc: one PeerConnection with a
// single bidirectional Opus audio track.
package media

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

type Settings struct {
	// UDPPortMin and UDPPortMax bound the ephemeral ports used for ICE. Both
	// zero leaves the OS to choose.
	UDPPortMin uint16
	UDPPortMax uint16

	LoggerFactory logging.LoggerFactory

	// Configure, when set, runs last and may adjust the SettingEngine, e.g.
	// to attach a virtual network in tests.
	Configure func(*webrtc.SettingEngine)
}

// NewAPI builds a pion API with the default codecs and the default
// interceptor chain. The interceptors produce the RTCP reports that the
// round-trip and loss statistics are derived from.
func NewAPI(s Settings) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if err := ApplyNetworkSettings(&se, s); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

func ApplyNetworkSettings(se *webrtc.SettingEngine, s Settings) error {
	if s.UDPPortMin != 0 || s.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(s.UDPPortMin, s.UDPPortMax); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}
	if s.LoggerFactory != nil {
		se.LoggerFactory = s.LoggerFactory
	}
	if s.Configure != nil {
		s.Configure(se)
	}
	return nil
}

// Package turnrest mints coturn-compatible ephemeral TURN credentials from a
// shared secret (use-auth-secret):
//
//	username   = <unix expiry>:<prefix>:<call id>
//	credential = base64(hmac_sha1(secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNoSecret     = errors.New("turnrest: shared secret is required")
	ErrInvalidTTL   = errors.New("turnrest: ttl must be at least one second")
	ErrInvalidField = errors.New("turnrest: username fields must be non-empty and contain no ':'")
)

type Config struct {
	SharedSecret string
	TTL          time.Duration
	// Prefix is the middle username field, typically the local peer ID.
	Prefix string
	Now    func() time.Time
	// NewID names each credential. Defaults to a random UUID.
	NewID func() string
}

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

type Generator struct {
	secret []byte
	ttl    time.Duration
	prefix string
	now    func() time.Time
	newID  func() string
}

func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, ErrNoSecret
	}
	if cfg.TTL < time.Second {
		return nil, ErrInvalidTTL
	}
	if !validField(cfg.Prefix) {
		return nil, fmt.Errorf("%w: prefix %q", ErrInvalidField, cfg.Prefix)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Generator{
		secret: []byte(cfg.SharedSecret),
		ttl:    cfg.TTL,
		prefix: cfg.Prefix,
		now:    cfg.Now,
		newID:  cfg.NewID,
	}, nil
}

// Generate mints credentials for one call.
func (g *Generator) Generate() (Credentials, error) {
	id := g.newID()
	if !validField(id) {
		return Credentials{}, fmt.Errorf("%w: id %q", ErrInvalidField, id)
	}
	expires := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), g.prefix, id)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		Expires:    expires,
	}, nil
}

// Apply returns a copy of servers where every TURN server without a
// username gets fresh credentials. STUN servers and TURN servers with
// configured credentials pass through unchanged.
func (g *Generator) Apply(servers []webrtc.ICEServer) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, len(servers))
	copy(out, servers)

	var creds *Credentials
	for i, s := range out {
		if !IsTURN(s) || s.Username != "" {
			continue
		}
		if creds == nil {
			c, err := g.Generate()
			if err != nil {
				return nil, err
			}
			creds = &c
		}
		s.Username = creds.Username
		s.Credential = creds.Credential
		s.URLs = append([]string(nil), s.URLs...)
		out[i] = s
	}
	return out, nil
}

// IsTURN reports whether any of s's URLs is a turn: or turns: URL.
func IsTURN(s webrtc.ICEServer) bool {
	for _, u := range s.URLs {
		u = strings.ToLower(strings.TrimSpace(u))
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validField(s string) bool {
	return s != "" && !strings.Contains(s, ":")
}

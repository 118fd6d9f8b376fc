package devrelay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence mirrors room membership outside the relay process so that other
// tools can see who is online.
type Presence interface {
	Add(ctx context.Context, roomID, peerID string) error
	Remove(ctx context.Context, roomID, peerID string) error
	Members(ctx context.Context, roomID string) ([]string, error)
}

type MemoryPresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: map[string]map[string]struct{}{}}
}

func (p *MemoryPresence) Add(_ context.Context, roomID, peerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	peers, ok := p.rooms[roomID]
	if !ok {
		peers = map[string]struct{}{}
		p.rooms[roomID] = peers
	}
	peers[peerID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Remove(_ context.Context, roomID, peerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	peers := p.rooms[roomID]
	delete(peers, peerID)
	if len(peers) == 0 {
		delete(p.rooms, roomID)
	}
	return nil
}

func (p *MemoryPresence) Members(_ context.Context, roomID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.rooms[roomID]))
	for id := range p.rooms[roomID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// DefaultPresenceTTL bounds how long a room's set outlives its last update.
const DefaultPresenceTTL = 24 * time.Hour

// RedisPresence keeps one set per room under room:<id>:peers.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresence{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("devrelay: connect to redis %s: %w", addr, err)
	}
	return client, nil
}

func presenceKey(roomID string) string {
	return "room:" + roomID + ":peers"
}

func (p *RedisPresence) Add(ctx context.Context, roomID, peerID string) error {
	key := presenceKey(roomID)
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, key, peerID)
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Remove(ctx context.Context, roomID, peerID string) error {
	return p.client.SRem(ctx, presenceKey(roomID), peerID).Err()
}

func (p *RedisPresence) Members(ctx context.Context, roomID string) ([]string, error) {
	out, err := p.client.SMembers(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

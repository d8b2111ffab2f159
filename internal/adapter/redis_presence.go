package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence tracks a room's registered sockets in Redis instead of
// process memory, so multiple diffsyncd processes behind a
// load balancer share broadcast membership for a room. It is optional:
// SessionRouter/RoomStore work fine with the in-process
// RoomState.Sockets set alone in a single-process deployment.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence creates a presence tracker. ttl bounds how long a
// socket registration survives without a Refresh call, guarding against
// entries orphaned by a process crash.
func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &RedisPresence{client: client, ttl: ttl}
}

func (p *RedisPresence) key(roomID string) string {
	return "diffsync:room:" + roomID + ":sockets"
}

// Join registers connID as present in roomID.
func (p *RedisPresence) Join(ctx context.Context, roomID, connID string) error {
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, p.key(roomID), connID)
	pipe.Expire(ctx, p.key(roomID), p.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("adapter: redis presence join: %w", err)
	}

	return nil
}

// Leave removes connID from roomID's presence set.
func (p *RedisPresence) Leave(ctx context.Context, roomID, connID string) error {
	if err := p.client.SRem(ctx, p.key(roomID), connID).Err(); err != nil {
		return fmt.Errorf("adapter: redis presence leave: %w", err)
	}

	return nil
}

// Members returns the connection IDs currently present in roomID.
func (p *RedisPresence) Members(ctx context.Context, roomID string) ([]string, error) {
	members, err := p.client.SMembers(ctx, p.key(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("adapter: redis presence members: %w", err)
	}

	return members, nil
}

// Refresh extends the TTL on roomID's presence set, called periodically
// by whichever process still holds live connections for it.
func (p *RedisPresence) Refresh(ctx context.Context, roomID string) error {
	if err := p.client.Expire(ctx, p.key(roomID), p.ttl).Err(); err != nil {
		return fmt.Errorf("adapter: redis presence refresh: %w", err)
	}

	return nil
}

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const descriptorKeyPrefix = "iris:descriptors:"

// Mirror writes a host's resolved loader descriptor table into Redis, one
// key per type and host, so operators can see "what's loaded where" across
// a fleet. Nothing in Iris, the admin surface included, reads these keys
// back. A Mirror constructed without a host is disabled and every method
// is a no-op.
type Mirror struct {
	client  *redis.Client
	enabled bool
	log     zerolog.Logger
}

// NewMirror connects to cfg.RedisHost/RedisPort. Connection pooling and
// retry settings mirror the teacher's cache client.
func NewMirror(cfg Config, log zerolog.Logger) *Mirror {
	if cfg.RedisHost == "" {
		return &Mirror{log: log}
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDB,
		PoolSize:        25,
		MinIdleConns:    5,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisHost+":"+cfg.RedisPort).Msg("telemetry: redis unavailable, mirror disabled")
		return &Mirror{log: log}
	}

	return &Mirror{client: client, enabled: true, log: log}
}

// Refresh writes one key per module type, holding the sorted version
// list, with a TTL so a host that stops mirroring eventually disappears
// from the fleet view instead of reporting stale data forever.
func (m *Mirror) Refresh(ctx context.Context, hostID string, snapshot map[string][]uint32) {
	if !m.enabled {
		return
	}
	for typ, versions := range snapshot {
		data, err := json.Marshal(versions)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%s%s:%s", descriptorKeyPrefix, typ, hostID)
		if err := m.client.Set(ctx, key, data, 2*time.Minute).Err(); err != nil {
			m.log.Warn().Err(err).Str("type", typ).Msg("telemetry: failed to mirror descriptor")
		}
	}
}

// Close releases the Redis connection, if one was established.
func (m *Mirror) Close() {
	if !m.enabled {
		return
	}
	_ = m.client.Close()
}

package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis record store.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// PendingTTL bounds how long a pending record can exist without a
	// commit or release, so a crashed invocation cannot block redeliveries
	// forever. Completed records never expire.
	PendingTTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		PendingTTL:   15 * time.Minute,
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisStore persists processing records in Redis. The conditional create
// is SET NX; the commit and release transitions run as Lua scripts so the
// status check and the write are a single atomic step.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// completeScript transitions a record to completed. Returns 1 on
// transition, 0 when already completed with the same output path, -1 when
// already completed with a different one.
var completeScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if cur then
		local rec = cjson.decode(cur)
		if rec.status == "completed" then
			if rec.output_path == ARGV[2] then
				return 0
			end
			return -1
		end
	end
	redis.call("SET", KEYS[1], ARGV[1])
	redis.call("PERSIST", KEYS[1])
	return 1
`)

// deletePendingScript removes a record only while it is pending.
var deletePendingScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if not cur then
		return 0
	end
	local rec = cjson.decode(cur)
	if rec.status == "pending" then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// NewRedisStore creates and pings a Redis-backed record store. Zero
// timeout, TTL, and pool settings take the defaults.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	def := DefaultRedisConfig(cfg.Address)
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = def.MinIdleConns
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{cfg: cfg, client: client}, nil
}

// CreatePending performs the atomic conditional create with SET NX. The
// pending TTL is applied here; Complete removes it.
func (s *RedisStore) CreatePending(ctx context.Context, rec *Record) (*Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal record: %w", err)
	}

	// A key can expire between a failed SETNX and the follow-up GET; one
	// extra attempt covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, rec.Key, data, s.cfg.PendingTTL).Result()
		if err != nil {
			return nil, false, fmt.Errorf("conditional create failed: %w", err)
		}
		if created {
			return nil, true, nil
		}

		existing, err := s.Get(ctx, rec.Key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return nil, false, fmt.Errorf("record for %s kept expiring during create", rec.Key)
}

// Get retrieves a record.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Complete transitions a record to completed atomically via Lua.
func (s *RedisStore) Complete(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	result, err := completeScript.Run(ctx, s.client, []string{rec.Key}, data, rec.OutputPath).Int()
	if err != nil {
		return fmt.Errorf("commit script failed: %w", err)
	}
	if result == -1 {
		return ErrConflict
	}
	return nil
}

// DeletePending removes a record only while pending, atomically via Lua.
func (s *RedisStore) DeletePending(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := deletePendingScript.Run(ctx, s.client, []string{key}).Err(); err != nil {
		return fmt.Errorf("release script failed: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Name returns "redis".
func (s *RedisStore) Name() string {
	return "redis"
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Stats returns Redis connection pool statistics.
func (s *RedisStore) Stats() *redis.PoolStats {
	return s.client.PoolStats()
}

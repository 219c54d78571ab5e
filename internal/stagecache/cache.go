package stagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"handout/internal/config"
	"handout/internal/logging"
)

// DefaultTTL is used when the caller does not configure one.
const DefaultTTL = 7 * 24 * time.Hour

// Backend persists opaque payloads by key.
type Backend interface {
	Load(ctx context.Context, key string) (payload []byte, expiresAt time.Time, found bool, err error)
	Store(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Cache wraps a Backend with key derivation, TTL handling and error
// degradation.
type Cache struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a cache over backend.
func New(backend Backend, ttl time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		backend: backend,
		ttl:     ttl,
		logger:  logging.NewComponentLogger(logger, "stagecache"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open builds the cache selected by cfg.Cache.Backend.
func Open(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Backend)) {
	case "", "sqlite":
		backend, err = OpenSQLite(cfg.CacheDBPath())
	case "dynamodb":
		backend, err = NewDynamoDBFromConfig(cfg.Cache.DynamoDBTable, cfg.Cache.DynamoDBRegion)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, cfg.CacheTTL(), logger), nil
}

// Key derives the storage key for a (source, stage) pair.
func Key(sourceID, stage string) string {
	sum := sha256.Sum256([]byte(sourceID + ":" + stage))
	return hex.EncodeToString(sum[:])
}

// Get returns the payload stored for the pair. Expired entries are removed
// and reported as misses.
func (c *Cache) Get(ctx context.Context, sourceID, stage string) (json.RawMessage, bool) {
	if c == nil || c.backend == nil || strings.TrimSpace(sourceID) == "" {
		return nil, false
	}
	key := Key(sourceID, stage)
	payload, expiresAt, found, err := c.backend.Load(ctx, key)
	if err != nil {
		c.degraded("load", stage, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if !expiresAt.IsZero() && !c.now().Before(expiresAt) {
		if err := c.backend.Remove(ctx, key); err != nil {
			c.degraded("purge", stage, err)
		}
		return nil, false
	}
	if !json.Valid(payload) {
		c.degraded("decode", stage, fmt.Errorf("stored payload is not valid JSON"))
		return nil, false
	}
	return json.RawMessage(payload), true
}

// GetInto decodes a cached payload into target.
func (c *Cache) GetInto(ctx context.Context, sourceID, stage string, target any) bool {
	raw, ok := c.Get(ctx, sourceID, stage)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		c.degraded("decode", stage, err)
		return false
	}
	return true
}

// Set stores payload as JSON. Concurrent writers are last-write-wins.
func (c *Cache) Set(ctx context.Context, sourceID, stage string, payload any) {
	if c == nil || c.backend == nil || strings.TrimSpace(sourceID) == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.degraded("encode", stage, err)
		return
	}
	if err := c.backend.Store(ctx, Key(sourceID, stage), data, c.now().Add(c.ttl)); err != nil {
		c.degraded("store", stage, err)
	}
}

// Delete removes the entry for the pair.
func (c *Cache) Delete(ctx context.Context, sourceID, stage string) {
	if c == nil || c.backend == nil {
		return
	}
	if err := c.backend.Remove(ctx, Key(sourceID, stage)); err != nil {
		c.degraded("delete", stage, err)
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

func (c *Cache) degraded(op, stage string, err error) {
	logging.WarnWithContext(c.logger, "stage cache degraded",
		"cache_degraded",
		logging.String("operation", op),
		logging.String(logging.FieldStage, stage),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check cache backend availability"),
		logging.String(logging.FieldImpact, "stage will run without cached results"),
	)
}

// Package cache is a TTL cache over a synchronous key-value storage. It
// exists to skip redundant inference calls, so every storage failure is
// treated as a miss on read and as a no-op on write.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode"
)

// DefaultTTL is the maximum age of an entry.
const DefaultTTL = 24 * time.Hour

// KeyPrefix starts every key produced by GenerateKey.
const KeyPrefix = "repolens:v1:"

// Storage is a synchronous key-value store. Implementations may reject
// writes when full by returning ErrQuotaExceeded.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Lister is implemented by storages that can enumerate their keys.
type Lister interface {
	Keys(prefix string) ([]string, error)
}

// entry is the serialized form of a cached value.
type entry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt int64           `json:"storedAt"`
}

// Cache stores JSON-encoded values with a storage timestamp.
type Cache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used to report swallowed storage errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cache over storage.
func New(storage Storage, opts ...Option) *Cache {
	c := &Cache{
		storage: storage,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the value stored under key. Missing, expired, unreadable
// and malformed entries all report ok=false. Expired and malformed
// entries are removed.
func Get[T any](c *Cache, key string) (value T, ok bool) {
	if c == nil || c.storage == nil {
		return value, false
	}
	raw, found, err := c.storage.GetItem(key)
	if err != nil {
		c.logger.Debug("cache read failed", "key", key, "error", err)
		return value, false
	}
	if !found {
		return value, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Debug("cache entry malformed", "key", key, "error", err)
		c.remove(key)
		return value, false
	}
	if c.expired(e) {
		c.remove(key)
		return value, false
	}
	if err := json.Unmarshal(e.Value, &value); err != nil {
		c.logger.Debug("cache value malformed", "key", key, "error", err)
		c.remove(key)
		var zero T
		return zero, false
	}
	return value, true
}

// Set stores value under key. Encoding and storage failures are logged
// and otherwise ignored.
func Set[T any](c *Cache, key string, value T) {
	if c == nil || c.storage == nil {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value not encodable", "key", key, "error", err)
		return
	}
	payload, err := json.Marshal(entry{Value: encoded, StoredAt: c.now().UnixMilli()})
	if err != nil {
		return
	}
	if err := c.storage.SetItem(key, string(payload)); err != nil {
		c.logger.Warn("cache write skipped", "key", key, "error", err)
	}
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	if c == nil || c.storage == nil {
		return
	}
	c.remove(key)
}

// Purge removes every expired or malformed entry under KeyPrefix and
// returns how many were removed. Storages that cannot list keys are left
// to lazy eviction.
func (c *Cache) Purge() int {
	lister, ok := c.storage.(Lister)
	if !ok {
		return 0
	}
	keys, err := lister.Keys(KeyPrefix)
	if err != nil {
		c.logger.Warn("cache purge skipped", "error", err)
		return 0
	}
	removed := 0
	for _, key := range keys {
		raw, found, err := c.storage.GetItem(key)
		if err != nil || !found {
			continue
		}
		var e entry
		if json.Unmarshal([]byte(raw), &e) == nil && !c.expired(e) {
			continue
		}
		c.remove(key)
		removed++
	}
	return removed
}

func (c *Cache) expired(e entry) bool {
	age := c.now().Sub(time.UnixMilli(e.StoredAt))
	return age > c.ttl
}

func (c *Cache) remove(key string) {
	if err := c.storage.RemoveItem(key); err != nil {
		c.logger.Debug("cache evict failed", "key", key, "error", err)
	}
}

// GenerateKey derives the storage key of a (scope, path, kind) request.
// Each part is lower-cased with runs of non-alphanumeric characters
// folded to a single dash, so formatting noise upstream maps to the same
// entry. The parts are hashed together; the normalized kind stays
// readable in the key.
func GenerateKey(scope, path, kind string) string {
	s, p, k := normalize(scope), normalize(path), normalize(kind)
	sum := sha256.Sum256([]byte(s + "\x00" + p + "\x00" + k))
	return KeyPrefix + k + ":" + hex.EncodeToString(sum[:12])
}

func normalize(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

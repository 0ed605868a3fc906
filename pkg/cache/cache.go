// Package cache implements a content-addressable cache for computed answers
// and synthesized audio. Entries are keyed by a hash of their input text and
// stored in a kv.Store, so the backend (in-memory, BadgerDB) is swappable.
//
// The cache is bounded by entry count; Evict removes the oldest entries when
// the bound is exceeded. Two independent instances are used in the relay:
// one for text answers keyed by normalized message text, one for audio blobs
// keyed by the exact synthesized text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chathelp/relay/pkg/kv"
)

// DefaultMaxEntries bounds the cache when no explicit cap is configured.
const DefaultMaxEntries = 1000

// Entry is the stored representation of one cached value.
type Entry struct {
	Value     []byte    `msgpack:"value"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Cache is a bounded content-addressable store over a kv.Store namespace.
// All instances sharing a store must use distinct prefixes.
type Cache struct {
	store      kv.Store
	prefix     kv.Key
	maxEntries int
	now        func() time.Time
}

// New creates a Cache over the given store namespace. maxEntries <= 0 uses
// DefaultMaxEntries.
func New(store kv.Store, prefix kv.Key, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		store:      store,
		prefix:     prefix,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// key builds the store key for a cache key without aliasing the prefix.
func (c *Cache) key(k string) kv.Key {
	return append(c.prefix[:len(c.prefix):len(c.prefix)], k)
}

// HashText returns the hex-encoded SHA-256 digest of the exact text.
// Used for audio entries, where the synthesized text is the identity.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NormalizeKey returns the cache key for a message: the digest of its
// trimmed, case-folded text. Two messages differing only in surrounding
// whitespace or letter case share one entry.
func NormalizeKey(text string) string {
	return HashText(strings.ToLower(strings.TrimSpace(text)))
}

// Get retrieves a cached value by key. The second return is false on miss.
// Storage errors are treated as misses and logged; a broken cache must never
// break answer delivery.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			slog.Warn("cache: get failed", "key", key, "err", err)
		}
		return nil, false
	}
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		slog.Warn("cache: corrupt entry", "key", key, "err", err)
		return nil, false
	}
	return e.Value, true
}

// GetString is Get for text values.
func (c *Cache) GetString(ctx context.Context, key string) (string, bool) {
	v, ok := c.Get(ctx, key)
	if !ok {
		return "", false
	}
	return string(v), true
}

// Put stores a value under key, then evicts if the entry count exceeds the
// bound. Put failures are the caller's choice to log; they are never fatal.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	e := Entry{Value: value, CreatedAt: c.now()}
	raw, err := msgpack.Marshal(&e)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, c.key(key), raw); err != nil {
		return err
	}
	if _, err := c.Evict(ctx); err != nil {
		slog.Warn("cache: evict after put failed", "err", err)
	}
	return nil
}

// PutString is Put for text values.
func (c *Cache) PutString(ctx context.Context, key, value string) error {
	return c.Put(ctx, key, []byte(value))
}

// Evict removes the oldest entries until the entry count is back under the
// configured bound. It returns the number of entries removed.
func (c *Cache) Evict(ctx context.Context) (int, error) {
	type aged struct {
		key       kv.Key
		createdAt time.Time
	}
	var all []aged
	for e, err := range c.store.List(ctx, c.prefix) {
		if err != nil {
			return 0, err
		}
		var entry Entry
		if err := msgpack.Unmarshal(e.Value, &entry); err != nil {
			// Corrupt entries go first.
			all = append(all, aged{key: e.Key})
			continue
		}
		all = append(all, aged{key: e.Key, createdAt: entry.CreatedAt})
	}
	if len(all) <= c.maxEntries {
		return 0, nil
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})
	evicted := 0
	for _, a := range all[:len(all)-c.maxEntries] {
		if err := c.store.Delete(ctx, a.key); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// Len reports the current entry count.
func (c *Cache) Len(ctx context.Context) (int, error) {
	n := 0
	for _, err := range c.store.List(ctx, c.prefix) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Janitor periodically evicts until ctx is cancelled. Run it in its own
// goroutine; eviction errors are logged and the loop continues.
func (c *Cache) Janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := c.Evict(ctx); err != nil {
				slog.Warn("cache: periodic evict failed", "prefix", c.prefix.String(), "err", err)
			} else if n > 0 {
				slog.Debug("cache: evicted entries", "prefix", c.prefix.String(), "count", n)
			}
		}
	}
}

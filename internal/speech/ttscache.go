// Package speech dispatches per-sentence synthesis and caches the audio.
package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheKey derives the lookup key from everything that changes the audio.
func CacheKey(text, language, emotion, persona string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(emotion))
	h.Write([]byte{0})
	h.Write([]byte(persona))
	return "tts:" + hex.EncodeToString(h.Sum(nil))
}

// DistKV is the shared cache tier. Callers branch on Available instead of
// handling backend errors.
type DistKV interface {
	Available() bool
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// RedisKV is the redis-backed DistKV. Every op is best-effort.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps the client; a nil client is a permanently unavailable tier.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Available() bool {
	return r != nil && r.client != nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool) {
	if !r.Available() {
		return nil, false
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Debug("distributed tts cache read degraded", "error", err.Error())
		return nil, false
	}
	return val, true
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !r.Available() {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		slog.Debug("distributed tts cache write degraded", "error", err.Error())
	}
}

const (
	defaultLocalCapacity = 256
	distTTL              = 24 * time.Hour
)

// TTSCache is the two-tier audio cache: a bounded in-process map with
// insertion-order eviction in front of the shared distributed tier.
type TTSCache struct {
	mu       sync.Mutex
	local    map[string][]byte
	order    []string
	capacity int
	dist     DistKV
}

// NewTTSCache returns a TTSCache. dist may be an unavailable tier.
func NewTTSCache(capacity int, dist DistKV) *TTSCache {
	if capacity <= 0 {
		capacity = defaultLocalCapacity
	}
	return &TTSCache{
		local:    make(map[string][]byte),
		capacity: capacity,
		dist:     dist,
	}
}

// Get returns cached audio for the key, promoting distributed hits locally.
func (c *TTSCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if audio, ok := c.local[key]; ok {
		c.mu.Unlock()
		return audio, true
	}
	c.mu.Unlock()

	if c.dist == nil || !c.dist.Available() {
		return nil, false
	}
	audio, ok := c.dist.Get(ctx, key)
	if !ok {
		return nil, false
	}
	c.storeLocal(key, audio)
	return audio, true
}

// Set stores audio in both tiers.
func (c *TTSCache) Set(ctx context.Context, key string, audio []byte) {
	if len(audio) == 0 {
		return
	}
	c.storeLocal(key, audio)
	if c.dist != nil && c.dist.Available() {
		c.dist.Set(ctx, key, audio, distTTL)
	}
}

// Len reports the local tier size.
func (c *TTSCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.local)
}

func (c *TTSCache) storeLocal(key string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.local[key]; !exists {
		c.order = append(c.order, key)
	}
	c.local[key] = audio

	for len(c.local) > c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.local, oldest)
	}
}

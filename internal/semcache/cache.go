// Package semcache is an embedding-similarity cache over previously answered
// queries. It is advisory: when the embedder is unavailable every check is a
// miss and every store is a no-op.
package semcache

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/verbalearn/tutorcore/internal/models"
)

// Entry is one cached query/response pair.
type Entry struct {
	Query     string
	Embedding []float32
	Response  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Options bound the cache.
type Options struct {
	Threshold float64       // minimum cosine similarity for a hit
	Capacity  int           // entries kept before oldest-first eviction
	ScanLimit int           // most-recent entries scanned per check
	TTL       time.Duration // entry lifetime, refreshed on hit
}

// DefaultOptions returns the standard cache bounds.
func DefaultOptions() Options {
	return Options{
		Threshold: 0.95,
		Capacity:  1000,
		ScanLimit: 100,
		TTL:       time.Hour,
	}
}

// Cache holds recent responses keyed by embedding similarity. Shared across
// sessions; safe for concurrent use.
type Cache struct {
	embedder models.Embedder
	opts     Options

	mu      sync.Mutex
	entries []*Entry // oldest first
	nowFunc func() time.Time
}

// New returns a Cache over the embedder.
func New(embedder models.Embedder, opts Options) *Cache {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.95
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = 100
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &Cache{
		embedder: embedder,
		opts:     opts,
		nowFunc:  time.Now,
	}
}

// Hit is a successful cache lookup.
type Hit struct {
	Response   string
	Similarity float64
}

// Check returns the cached response for a semantically equivalent query, or
// nil on miss. A hit refreshes the entry's TTL.
func (c *Cache) Check(ctx context.Context, query string) *Hit {
	if c.embedder == nil || query == "" {
		return nil
	}

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil || len(vec) == 0 {
		if err != nil {
			slog.Debug("semantic cache check degraded", "error", err.Error())
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	c.evictExpiredLocked(now)

	// Bounded scan over the most recent entries only.
	start := 0
	if len(c.entries) > c.opts.ScanLimit {
		start = len(c.entries) - c.opts.ScanLimit
	}

	var best *Entry
	bestSim := 0.0
	for _, entry := range c.entries[start:] {
		sim := cosineSimilarity(vec, entry.Embedding)
		if sim > bestSim {
			best, bestSim = entry, sim
		}
	}
	if best == nil || bestSim < c.opts.Threshold {
		return nil
	}

	best.ExpiresAt = now.Add(c.opts.TTL)
	slog.Debug("semantic cache hit", "similarity", bestSim)
	return &Hit{Response: best.Response, Similarity: bestSim}
}

// Store records a completed generation, returning the query embedding so
// callers can persist the entry. Called only after the full response exists;
// failures are swallowed, the cache never blocks a turn.
func (c *Cache) Store(ctx context.Context, query, response string) []float32 {
	if c.embedder == nil || query == "" || response == "" {
		return nil
	}

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil || len(vec) == 0 {
		if err != nil {
			slog.Debug("semantic cache store degraded", "error", err.Error())
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	c.entries = append(c.entries, &Entry{
		Query:     query,
		Embedding: vec,
		Response:  response,
		CreatedAt: now,
		ExpiresAt: now.Add(c.opts.TTL),
	})
	for len(c.entries) > c.opts.Capacity {
		c.entries = c.entries[1:]
	}
	return vec
}

// Warm preloads entries recovered from persistent storage, oldest first.
func (c *Cache) Warm(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for i := range entries {
		e := entries[i]
		if len(e.Embedding) == 0 || e.Response == "" {
			continue
		}
		if e.ExpiresAt.IsZero() {
			e.ExpiresAt = now.Add(c.opts.TTL)
		}
		c.entries = append(c.entries, &e)
	}
	for len(c.entries) > c.opts.Capacity {
		c.entries = c.entries[1:]
	}
}

// Len reports the live entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictExpiredLocked(now time.Time) {
	kept := c.entries[:0]
	for _, entry := range c.entries {
		if entry.ExpiresAt.After(now) {
			kept = append(kept, entry)
		}
	}
	c.entries = kept
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

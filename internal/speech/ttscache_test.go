package speech

import (
	"bytes"
	"context"
	"testing"
	"time"
)

// fakeDist is an in-memory DistKV with a switchable availability flag.
type fakeDist struct {
	data      map[string][]byte
	available bool
}

func newFakeDist() *fakeDist {
	return &fakeDist{data: make(map[string][]byte), available: true}
}

func (f *fakeDist) Available() bool { return f.available }

func (f *fakeDist) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok := f.data[key]
	return val, ok
}

func (f *fakeDist) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	f.data[key] = value
}

func TestCacheKeyDimensions(t *testing.T) {
	base := CacheKey("hello", "en", "neutral", "maya")

	if CacheKey("hello", "en", "neutral", "maya") != base {
		t.Fatal("identical inputs must produce identical keys")
	}
	for _, other := range []string{
		CacheKey("hello!", "en", "neutral", "maya"),
		CacheKey("hello", "hi", "neutral", "maya"),
		CacheKey("hello", "en", "engaged", "maya"),
		CacheKey("hello", "en", "neutral", "arjun"),
	} {
		if other == base {
			t.Fatal("key must change when any dimension changes")
		}
	}
}

func TestTTSCacheRoundTrip(t *testing.T) {
	cache := NewTTSCache(8, nil)
	key := CacheKey("good morning", "en", "neutral", "maya")
	audio := []byte{0x49, 0x44, 0x33, 0x04, 0x00}

	cache.Set(context.Background(), key, audio)

	got, ok := cache.Get(context.Background(), key)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if !bytes.Equal(got, audio) {
		t.Fatal("round-trip must return byte-identical audio")
	}

	// Differing persona or emotion misses.
	if _, ok := cache.Get(context.Background(), CacheKey("good morning", "en", "neutral", "arjun")); ok {
		t.Fatal("different persona must miss")
	}
	if _, ok := cache.Get(context.Background(), CacheKey("good morning", "en", "engaged", "maya")); ok {
		t.Fatal("different emotion must miss")
	}
}

func TestTTSCacheInsertionOrderEviction(t *testing.T) {
	cache := NewTTSCache(2, nil)

	cache.Set(context.Background(), "k1", []byte("a"))
	cache.Set(context.Background(), "k2", []byte("b"))
	cache.Set(context.Background(), "k3", []byte("c"))

	if cache.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", cache.Len())
	}
	if _, ok := cache.Get(context.Background(), "k1"); ok {
		t.Fatal("first inserted key should have been evicted")
	}
	if _, ok := cache.Get(context.Background(), "k3"); !ok {
		t.Fatal("latest key should survive")
	}
}

func TestTTSCacheDistributedTierPromotion(t *testing.T) {
	dist := newFakeDist()
	cache := NewTTSCache(8, dist)

	dist.data["k"] = []byte("shared audio")

	got, ok := cache.Get(context.Background(), "k")
	if !ok || string(got) != "shared audio" {
		t.Fatalf("expected distributed hit, got %q/%v", got, ok)
	}
	// Promoted into the local tier.
	dist.available = false
	if _, ok := cache.Get(context.Background(), "k"); !ok {
		t.Fatal("expected local hit after promotion")
	}
}

func TestTTSCacheUnavailableDistIsSilent(t *testing.T) {
	dist := newFakeDist()
	dist.available = false
	cache := NewTTSCache(8, dist)

	cache.Set(context.Background(), "k", []byte("audio"))
	if len(dist.data) != 0 {
		t.Fatal("unavailable tier must not be written")
	}
	if _, ok := cache.Get(context.Background(), "k"); !ok {
		t.Fatal("local tier must still serve")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	audio := bytes.Repeat([]byte("pcm-frame"), 1024)

	compressed, err := Compress(audio)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !IsCompressed(compressed) {
		t.Fatal("compressed output should carry gzip magic")
	}
	if IsCompressed(audio) {
		t.Fatal("raw audio misdetected as compressed")
	}

	restored, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !bytes.Equal(restored, audio) {
		t.Fatal("decompress must restore original bytes")
	}
}

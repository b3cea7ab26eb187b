// Package contextstore keeps the rolling per-(user,chat) detection history
// in a remote TTL store. Every operation is best-effort: an outage yields
// an empty context, never an error.
package contextstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verbalearn/tutorcore/internal/types"
)

const (
	keyPrefix    = "tutorctx:"
	defaultTTL   = 24 * time.Hour
	historyLimit = 20
	recentWindow = 10
)

// Store reads and writes session contexts.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a Store. A nil client degrades every call to stateless
// behavior.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Available reports whether the backing store is configured.
func (s *Store) Available() bool {
	return s != nil && s.client != nil
}

func key(userID, chatID string) string {
	return keyPrefix + userID + ":" + chatID
}

// Get returns the stored context, or nil when missing or unavailable.
func (s *Store) Get(ctx context.Context, userID, chatID string) *types.SessionContext {
	if !s.Available() {
		return nil
	}
	val, err := s.client.Get(ctx, key(userID, chatID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		slog.Debug("context store read degraded", "error", err.Error())
		return nil
	}

	var sctx types.SessionContext
	if err := json.Unmarshal([]byte(val), &sctx); err != nil {
		slog.Debug("context store payload malformed, discarding", "error", err.Error())
		return nil
	}
	return &sctx
}

// Update appends the latest detections and writes the context back with a
// refreshed TTL. Failures are swallowed.
func (s *Store) Update(ctx context.Context, userID, chatID string, language, emotion string, sess *types.TutorSession, responseTime time.Duration) *types.SessionContext {
	sctx := s.Get(ctx, userID, chatID)
	if sctx == nil {
		sctx = &types.SessionContext{UserID: userID, ChatID: chatID}
	}

	sctx.LanguageHistory = appendBounded(sctx.LanguageHistory, language)
	sctx.EmotionalHistory = appendBounded(sctx.EmotionalHistory, emotion)
	sctx.MessageCount++
	if responseTime > 0 {
		// Running average over message count.
		n := float64(sctx.MessageCount)
		sctx.AvgResponseTime = (sctx.AvgResponseTime*(n-1) + responseTime.Seconds()) / n
	}
	if sess != nil {
		sctx.Phase = string(sess.Phase)
		sctx.Subject = sess.Subject
		sctx.Topic = sess.Topic
	}
	sctx.UpdatedAt = time.Now()

	s.put(ctx, sctx)
	return sctx
}

func (s *Store) put(ctx context.Context, sctx *types.SessionContext) {
	if !s.Available() {
		return
	}
	val, err := json.Marshal(sctx)
	if err != nil {
		slog.Debug("context store marshal failed", "error", err.Error())
		return
	}
	if err := s.client.Set(ctx, key(sctx.UserID, sctx.ChatID), val, s.ttl).Err(); err != nil {
		slog.Debug("context store write degraded", "error", err.Error())
	}
}

func appendBounded(history []string, entry string) []string {
	if entry == "" {
		return history
	}
	history = append(history, entry)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return history
}

// PreferredLanguage is the majority language over the last ten detections.
func PreferredLanguage(sctx *types.SessionContext) string {
	if sctx == nil {
		return ""
	}
	lang, _ := modal(lastN(sctx.LanguageHistory, recentWindow))
	return lang
}

// LanguageStability is the fraction of the last ten detections matching the
// modal language.
func LanguageStability(sctx *types.SessionContext) float64 {
	if sctx == nil {
		return 0
	}
	_, score := modal(lastN(sctx.LanguageHistory, recentWindow))
	return score
}

// EmotionStability is the modal fraction over recent emotion detections.
func EmotionStability(sctx *types.SessionContext) float64 {
	if sctx == nil {
		return 0
	}
	_, score := modal(lastN(sctx.EmotionalHistory, recentWindow))
	return score
}

func lastN(history []string, n int) []string {
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func modal(entries []string) (string, float64) {
	if len(entries) == 0 {
		return "", 0
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e]++
	}
	best, bestCount := "", 0
	for _, e := range entries {
		if counts[e] > bestCount {
			best, bestCount = e, counts[e]
		}
	}
	return best, float64(bestCount) / float64(len(entries))
}

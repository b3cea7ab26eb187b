package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/verbalearn/tutorcore/internal/semcache"
)

// cacheEntryModel maps to the semantic_cache_entries table. Rows back the
// in-process semantic cache so restarts do not start cold.
type cacheEntryModel struct {
	ID        int `gorm:"primaryKey"`
	Query     string
	Response  string
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
}

func (cacheEntryModel) TableName() string {
	return "semantic_cache_entries"
}

// CacheEntryRepo persists semantic cache entries.
type CacheEntryRepo struct {
	db *gorm.DB
}

// NewCacheEntryRepo returns a CacheEntryRepo.
func NewCacheEntryRepo(db *gorm.DB) *CacheEntryRepo {
	return &CacheEntryRepo{db: db}
}

// Add stores one completed generation with its query embedding.
func (r *CacheEntryRepo) Add(ctx context.Context, query, response string, embedding []float32) error {
	var vector *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vector = &v
	}
	record := cacheEntryModel{
		Query:     query,
		Response:  response,
		Embedding: vector,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, oldest first, ready for cache warmup.
func (r *CacheEntryRepo) Recent(ctx context.Context, limit int) ([]semcache.Entry, error) {
	var records []cacheEntryModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}

	entries := make([]semcache.Entry, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		entry := semcache.Entry{
			Query:     record.Query,
			Response:  record.Response,
			CreatedAt: record.CreatedAt,
		}
		if record.Embedding != nil {
			entry.Embedding = record.Embedding.Slice()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Package cache is the optional Redis-backed completion cache the
// Download Controller consults before the on-disk existence check,
// keyed on (book id, variant set) rather than the teacher's bare book
// id, since a book built as "legacy" only is not a cache hit for a
// later "dual" request. Grounded on the teacher's cache/redis.go
// (BookCacheInfo, Get/Set/Delete/Exists over a redis.Client).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"oreilly-library/internal/apperrors"
	"oreilly-library/internal/models"
)

// Entry is the cached record for one (book, variant set) build.
type Entry struct {
	BookID     string    `json:"book_id"`
	BookTitle  string    `json:"book_title"`
	VariantKey string    `json:"variant_key"`
	LocalPath  string    `json:"local_path"`
	MinIOPath  string    `json:"minio_path,omitempty"`
	PresignedURL string  `json:"presigned_url,omitempty"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
	ISBN       string    `json:"isbn,omitempty"`
}

// BookCache wraps a Redis client scoped to book-completion lookups.
type BookCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewBookCache dials Redis and verifies the connection with a Ping.
func NewBookCache(host, port, password string) (*BookCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.New(apperrors.KindConfiguration, "connect to redis completion cache", err)
	}

	return &BookCache{client: client, ctx: ctx}, nil
}

// VariantKey canonicalizes a variant set into a stable cache-key
// fragment, independent of request ordering.
func VariantKey(variants []models.Variant) string {
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

func cacheKey(bookID, variantKey string) string {
	return fmt.Sprintf("book:%s:%s", bookID, variantKey)
}

// Get looks up a prior build for bookID under the given variant set. A
// nil, false, nil return means a clean miss.
func (c *BookCache) Get(bookID string, variants []models.Variant) (*Entry, bool, error) {
	data, err := c.client.Get(c.ctx, cacheKey(bookID, VariantKey(variants))).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.New(apperrors.KindTransient, "read completion cache", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, false, apperrors.New(apperrors.KindFilesystem, "decode cached entry", err)
	}
	return &entry, true, nil
}

// Set records a finished build with no expiration.
func (c *BookCache) Set(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return apperrors.New(apperrors.KindFilesystem, "encode cache entry", err)
	}
	if err := c.client.Set(c.ctx, cacheKey(entry.BookID, entry.VariantKey), data, 0).Err(); err != nil {
		return apperrors.New(apperrors.KindTransient, "write completion cache", err)
	}
	return nil
}

// Delete evicts a cached entry, e.g. after a forced re-download.
func (c *BookCache) Delete(bookID string, variants []models.Variant) error {
	if err := c.client.Del(c.ctx, cacheKey(bookID, VariantKey(variants))).Err(); err != nil {
		return apperrors.New(apperrors.KindTransient, "evict completion cache entry", err)
	}
	return nil
}

// Exists reports whether a cache entry is present, without decoding it.
func (c *BookCache) Exists(bookID string, variants []models.Variant) (bool, error) {
	n, err := c.client.Exists(c.ctx, cacheKey(bookID, VariantKey(variants))).Result()
	if err != nil {
		return false, apperrors.New(apperrors.KindTransient, "check completion cache", err)
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection.
func (c *BookCache) Close() error {
	return c.client.Close()
}

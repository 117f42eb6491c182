package cache

import (
	"context"
	"fmt"

	domain "github.com/example/repochat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// HistorySource loads message history from the store.
type HistorySource interface {
	History(ctx context.Context, repoID string, limit int) ([]domain.Message, error)
}

// HistoryCache serves repository history cache-aside. With a nil Cache it
// reads straight through to the source.
type HistoryCache struct {
	cache   *Cache
	source  HistorySource
	sfGroup singleflight.Group
	logger  types.Logger
}

// NewHistoryCache creates a HistoryCache.
func NewHistoryCache(cache *Cache, source HistorySource, logger types.Logger) *HistoryCache {
	return &HistoryCache{
		cache:  cache,
		source: source,
		logger: logger,
	}
}

// Pages are keyed by the repository's generation, which Invalidate bumps.
// A page read before an invalidation is written under the old generation
// and never served.
func historyKey(repoID string, gen int64, limit int) string {
	return fmt.Sprintf("history:%s:%d:%d", repoID, gen, limit)
}

func generationKey(repoID string) string {
	return "history-gen:" + repoID
}

// History returns up to limit messages of repoID, oldest first.
func (h *HistoryCache) History(ctx context.Context, repoID string, limit int) ([]domain.Message, error) {
	cacheable := h.cache != nil
	var gen int64
	if cacheable {
		var err error
		if gen, err = h.cache.Counter(ctx, generationKey(repoID)); err != nil {
			h.logger.Warn("History generation read failed", "repoId", repoID, "error", err)
			cacheable = false
		}
	}
	key := historyKey(repoID, gen, limit)

	if cacheable {
		var cached []domain.Message
		found, err := h.cache.Get(ctx, key, &cached)
		if err != nil {
			h.logger.Warn("History cache read failed", "repoId", repoID, "error", err)
		}
		if found {
			return cached, nil
		}
	}

	// The flight is shared, so one caller's cancellation must not fail the rest.
	flightCtx := context.WithoutCancel(ctx)
	val, err, _ := h.sfGroup.Do(key, func() (any, error) {
		return h.source.History(flightCtx, repoID, limit)
	})
	if err != nil {
		return nil, err
	}
	msgs, _ := val.([]domain.Message)
	if msgs == nil {
		msgs = []domain.Message{}
	}

	if cacheable {
		if err := h.cache.Set(ctx, key, msgs); err != nil {
			h.logger.Warn("History cache write failed", "repoId", repoID, "error", err)
		}
	}
	return msgs, nil
}

// Invalidate moves repoID to a new generation and drops its cached pages.
func (h *HistoryCache) Invalidate(ctx context.Context, repoID string) error {
	if h.cache == nil {
		return nil
	}
	gen, err := h.cache.Incr(ctx, generationKey(repoID))
	if err != nil {
		return err
	}
	n, err := h.cache.DeletePattern(ctx, fmt.Sprintf("history:%s:*", repoID))
	if err != nil {
		return err
	}
	h.logger.Debug("Invalidated history cache", "repoId", repoID, "generation", gen, "keys", n)
	return nil
}

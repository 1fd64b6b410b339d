/*
Package cache provides a Redis read-through cache for menus.

PURPOSE:
  Menus are read on every create, update and reactivation and once per
  user by the batch, but change rarely. MenuCache decorates a
  reservation.MenuRepository and keeps JSON copies in Redis.

KEYS:
  cafeteria:menu:{id}        menu without collections
  cafeteria:menu:{id}:full   menu with compositions and variations
  cafeteria:menu:date:{day}  menu id for a calendar date

FAILURE MODE:
  Redis is optional. Any Redis error is logged and the call falls through
  to the wrapped repository; a cache outage never fails a reservation.
  Absent menus are not cached.

INVALIDATION:
  Writes must go through WrapWriter (or call InvalidateMenu) so a withdrawn
  or edited menu is not served from cache. Entries also expire after TTL.
*/
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/cafeteria-engine/reservation"
)

// DefaultTTL bounds how long a menu is served from cache.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "cafeteria:menu:"

// MenuCache is a read-through reservation.MenuRepository.
type MenuCache struct {
	next   reservation.MenuRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ reservation.MenuRepository = (*MenuCache)(nil)

// NewMenuCache wraps next. A non-positive ttl uses DefaultTTL.
func NewMenuCache(next reservation.MenuRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *MenuCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MenuCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "menu_cache"),
	}
}

func menuKey(id string) string   { return keyPrefix + id }
func fullKey(id string) string   { return keyPrefix + id + ":full" }
func dateKey(d time.Time) string { return keyPrefix + "date:" + reservation.FormatDate(d) }

// FindMenuByID implements reservation.MenuRepository.
func (c *MenuCache) FindMenuByID(ctx context.Context, id string) (*reservation.Menu, error) {
	return c.readThrough(ctx, menuKey(id), func() (*reservation.Menu, error) {
		return c.next.FindMenuByID(ctx, id)
	})
}

// FindMenuWithComposition implements reservation.MenuRepository.
func (c *MenuCache) FindMenuWithComposition(ctx context.Context, id string) (*reservation.Menu, error) {
	return c.readThrough(ctx, fullKey(id), func() (*reservation.Menu, error) {
		return c.next.FindMenuWithComposition(ctx, id)
	})
}

// FindMenuByDate resolves the date to a menu id, then reads that menu.
func (c *MenuCache) FindMenuByDate(ctx context.Context, date time.Time) (*reservation.Menu, error) {
	id, err := c.client.Get(ctx, dateKey(date)).Result()
	switch {
	case err == nil:
		return c.FindMenuByID(ctx, id)
	case err != redis.Nil:
		c.logger.Warn("menu cache read failed", "key", dateKey(date), "error", err)
	}

	m, err := c.next.FindMenuByDate(ctx, date)
	if err != nil || m == nil {
		return m, err
	}
	if err := c.client.Set(ctx, dateKey(date), m.ID, c.ttl).Err(); err != nil {
		c.logger.Warn("menu cache write failed", "key", dateKey(date), "error", err)
	}
	c.store(ctx, menuKey(m.ID), m)
	return m, nil
}

// InvalidateMenu drops every entry derived from m.
func (c *MenuCache) InvalidateMenu(ctx context.Context, m reservation.Menu) error {
	keys := []string{menuKey(m.ID), fullKey(m.ID), dateKey(m.Date)}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate menu %s: %w", m.ID, err)
	}
	return nil
}

// WrapWriter returns a CatalogWriter that invalidates the cache after every
// menu write.
func (c *MenuCache) WrapWriter(w reservation.CatalogWriter) reservation.CatalogWriter {
	return &invalidatingWriter{next: w, cache: c}
}

func (c *MenuCache) readThrough(ctx context.Context, key string, load func() (*reservation.Menu, error)) (*reservation.Menu, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var m reservation.Menu
		if err := json.Unmarshal(data, &m); err == nil {
			return &m, nil
		}
		c.logger.Warn("discarding corrupt menu cache entry", "key", key)
	case err != redis.Nil:
		c.logger.Warn("menu cache read failed", "key", key, "error", err)
	}

	m, err := load()
	if err != nil || m == nil {
		return m, err
	}
	c.store(ctx, key, m)
	return m, nil
}

func (c *MenuCache) store(ctx context.Context, key string, m *reservation.Menu) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("menu cache write failed", "key", key, "error", err)
	}
}

type invalidatingWriter struct {
	next  reservation.CatalogWriter
	cache *MenuCache
}

func (w *invalidatingWriter) SaveUser(ctx context.Context, u reservation.User) error {
	return w.next.SaveUser(ctx, u)
}

func (w *invalidatingWriter) SaveMenu(ctx context.Context, m reservation.Menu) error {
	if err := w.next.SaveMenu(ctx, m); err != nil {
		return err
	}
	if err := w.cache.InvalidateMenu(ctx, m); err != nil {
		w.cache.logger.Warn("menu cache invalidation failed", "menu_id", m.ID, "error", err)
	}
	return nil
}

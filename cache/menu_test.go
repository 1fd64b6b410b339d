package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/reservation/store"
)

var march10 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func seededMemory(t *testing.T) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveMenu(context.Background(), reservation.Menu{
		ID: "menu-m", Date: march10, DayOfWeek: time.Monday, ISOWeek: 11, IsActive: true,
		Variations: []reservation.MenuVariation{
			{ID: "menu-m-std", MenuID: "menu-m", VariationType: reservation.VariationStandard, IsDefault: true},
		},
	}))
	return mem
}

// countingMenus counts calls that reach the wrapped repository.
type countingMenus struct {
	reservation.MenuRepository
	byID, full, byDate int
}

func (c *countingMenus) FindMenuByID(ctx context.Context, id string) (*reservation.Menu, error) {
	c.byID++
	return c.MenuRepository.FindMenuByID(ctx, id)
}

func (c *countingMenus) FindMenuWithComposition(ctx context.Context, id string) (*reservation.Menu, error) {
	c.full++
	return c.MenuRepository.FindMenuWithComposition(ctx, id)
}

func (c *countingMenus) FindMenuByDate(ctx context.Context, date time.Time) (*reservation.Menu, error) {
	c.byDate++
	return c.MenuRepository.FindMenuByDate(ctx, date)
}

func TestMenuCache_FailsOpenWhenRedisIsDown(t *testing.T) {
	// GIVEN: a Redis client pointing at a closed port
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	mem := seededMemory(t)
	counting := &countingMenus{MenuRepository: mem}
	c := NewMenuCache(counting, client, time.Minute, nil)
	ctx := context.Background()

	// WHEN: reading through the cache
	m, err := c.FindMenuByID(ctx, "menu-m")

	// THEN: the repository answers
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "menu-m", m.ID)

	full, err := c.FindMenuWithComposition(ctx, "menu-m")
	require.NoError(t, err)
	assert.Len(t, full.Variations, 1)

	byDate, err := c.FindMenuByDate(ctx, march10)
	require.NoError(t, err)
	assert.Equal(t, "menu-m", byDate.ID)

	none, err := c.FindMenuByDate(ctx, march10.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.Equal(t, 1, counting.byID)
	assert.Equal(t, 1, counting.full)
	assert.Equal(t, 2, counting.byDate)

	// writes still land even though invalidation fails
	writer := c.WrapWriter(mem)
	withdrawn := *full
	withdrawn.IsActive = false
	require.NoError(t, writer.SaveMenu(ctx, withdrawn))

	after, err := c.FindMenuByID(ctx, "menu-m")
	require.NoError(t, err)
	assert.False(t, after.IsActive)
}

// Set CAFETERIA_TEST_REDIS_ADDR (e.g. localhost:6379) to exercise the hit path.
func TestMenuCache_ServesHitsAndInvalidates(t *testing.T) {
	addr := os.Getenv("CAFETERIA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CAFETERIA_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Del(ctx, menuKey("menu-m"), fullKey("menu-m"), dateKey(march10)).Err())

	mem := seededMemory(t)
	counting := &countingMenus{MenuRepository: mem}
	c := NewMenuCache(counting, client, time.Minute, nil)

	// GIVEN: a menu read once
	_, err := c.FindMenuByDate(ctx, march10)
	require.NoError(t, err)

	// WHEN: read again
	m, err := c.FindMenuByDate(ctx, march10)
	require.NoError(t, err)

	// THEN: Redis answered
	assert.Equal(t, "menu-m", m.ID)
	assert.Equal(t, 1, counting.byDate)
	assert.Equal(t, 0, counting.byID)

	// a write through the wrapper drops the entries
	withdrawn := *m
	withdrawn.IsActive = false
	require.NoError(t, c.WrapWriter(mem).SaveMenu(ctx, withdrawn))

	m, err = c.FindMenuByDate(ctx, march10)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	assert.Equal(t, 2, counting.byDate)
}

package redisx

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestingRedis connects to TEST_REDIS_ADDR and flushes the selected db.
func getTestingRedis(t *testing.T) *OrderCache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return &OrderCache{RDB: rdb}
}

func TestOrderCache_RoundTrip(t *testing.T) {
	c := getTestingRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.Set(ctx, 1, 100, []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.True(t, stored)
	b, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":1}`, string(b))

	require.NoError(t, c.Invalidate(ctx, 1))
	_, ok, err = c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderCache_RefusesOlderView(t *testing.T) {
	c := getTestingRedis(t)
	ctx := context.Background()

	_, err := c.Set(ctx, 1, 200, []byte(`{"assignee":"Ravi"}`))
	require.NoError(t, err)

	stored, err := c.Set(ctx, 1, 100, []byte(`{"assignee":""}`))
	require.NoError(t, err)
	assert.False(t, stored)

	b, _, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"assignee":"Ravi"}`, string(b))

	// the version mark outlives an invalidation
	require.NoError(t, c.Invalidate(ctx, 1))
	stored, err = c.Set(ctx, 1, 100, []byte(`{"assignee":""}`))
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = c.Set(ctx, 1, 300, []byte(`{"assignee":"Meena"}`))
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestDedup_Claim(t *testing.T) {
	c := getTestingRedis(t)
	d := &Dedup{RDB: c.RDB, Service: "notifier"}
	ctx := context.Background()

	first, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(ctx, "evt-1"))
	after, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, after)
}

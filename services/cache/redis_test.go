package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	logsvc "github.com/trezcool/attendly/services/logger"
)

func degraded(t *testing.T) *Client {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Redis.Addr = ""
	c := New(conf, logsvc.New(logsvc.PrefixAPI, conf))
	require.False(t, c.Enabled())
	return c
}

func TestClient_denyList_inMemory(t *testing.T) {
	c := degraded(t)
	ctx := context.Background()

	require.NoError(t, c.DenyToken(ctx, "live", time.Now().Add(time.Minute)))
	require.NoError(t, c.DenyToken(ctx, "expired", time.Now().Add(-time.Minute)))

	denied, err := c.IsTokenDenied(ctx, "live")
	require.NoError(t, err)
	assert.True(t, denied)

	denied, err = c.IsTokenDenied(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, denied)

	denied, err = c.IsTokenDenied(ctx, "other")
	require.NoError(t, err)
	assert.False(t, denied)
}

func TestClient_degraded(t *testing.T) {
	c := degraded(t)
	ctx := context.Background()

	dec, err := c.Take(ctx, "login:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 5}, dec)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := c.Generation(ctx, "school")
	require.NoError(t, err)
	assert.Zero(t, gen)
	assert.NoError(t, c.Bump(ctx, "school"))
	assert.NoError(t, c.Close())
}

func TestClient_key(t *testing.T) {
	c := &Client{prefix: "attendly"}
	assert.Equal(t, "attendly:deny:abc", c.key("deny", "abc"))
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(3), asInt64(int64(3)))
	assert.Equal(t, int64(42), asInt64("42"))
	assert.Equal(t, int64(0), asInt64(nil))
}

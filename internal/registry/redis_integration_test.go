//go:build integration

package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joseph-ayodele/rxscan/constants"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisRegistry(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	r, err := NewRedisRegistry(ctx, RedisConfig{Addr: addr, Prefix: "test:contract:"}, nil)
	require.NoError(t, err)
	defer r.Close()
	runRegistryContract(t, r)

	c, err := NewRedisRegistry(ctx, RedisConfig{Addr: addr, Prefix: "test:concurrent:"}, nil)
	require.NoError(t, err)
	defer c.Close()
	runConcurrentRegister(t, c)
}

func TestRedisRegistry_TTL(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	r, err := NewRedisRegistry(ctx, RedisConfig{Addr: addr, TTL: time.Second}, nil)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Register(ctx, "short-lived", Entry{Original: "o", Processed: "p"}))
	assert.Eventually(t, func() bool {
		_, err := r.Lookup(ctx, "short-lived", constants.VariantOriginal)
		return err == ErrNotFound
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewRedisRegistry_Unreachable(t *testing.T) {
	_, err := NewRedisRegistry(context.Background(), RedisConfig{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}

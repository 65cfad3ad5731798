package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	client, err := New(context.Background(), &config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestCache_DisabledIsAlwaysMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(Disabled(), "scout")

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var out map[string]int
	found, err := cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestPromptKey(t *testing.T) {
	a := PromptKey("claude-sonnet", "sys", "prompt")
	b := PromptKey("claude-sonnet", "sys", "prompt")
	assert.Equal(t, a, b)
	assert.Len(t, a, len("reasoning:")+64)

	tests := []struct {
		name  string
		other string
	}{
		{"model differs", PromptKey("gemini", "sys", "prompt")},
		{"system differs", PromptKey("claude-sonnet", "sys2", "prompt")},
		{"prompt differs", PromptKey("claude-sonnet", "sys", "prompt2")},
		{"boundary shift", PromptKey("claude-sonnet", "sysp", "rompt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, a, tt.other)
		})
	}
}

func TestCache_RoundTrip(t *testing.T) {
	if testing.Short() || os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("TEST_REDIS_HOST not set, skipping integration test")
	}
	ctx := context.Background()
	client, err := New(ctx, &config.Config{Redis: config.RedisConfig{
		Enabled: true,
		Host:    os.Getenv("TEST_REDIS_HOST"),
		Port:    "6379",
	}})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "scout-test")
	key := PromptKey("m", "s", time.Now().String())
	require.NoError(t, cache.Set(ctx, key, map[string]string{"symbol": "005930"}, time.Minute))

	var out map[string]string
	found, err := cache.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "005930", out["symbol"])
	require.NoError(t, cache.Delete(ctx, key))
}

package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), &config.RedisConfig{Host: mr.Host(), Port: port, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, Health(context.Background(), client))

	mr.Close()
	assert.Error(t, Health(context.Background(), client))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = NewRedisClient(context.Background(), &config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}

package redisbudget

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestNew_SetsClientAndKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	s := New(client, "watchtower:budget:ws-1")
	assert.Equal(t, client, s.client)
	assert.Equal(t, "watchtower:budget:ws-1", s.key)
}

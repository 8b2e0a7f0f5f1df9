package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gezibash/arc-registrar/internal/statestore/physical"
	"github.com/gezibash/arc-registrar/internal/statestore/physical/physicaltest"
)

// Requires a reachable Redis; set ARC_TEST_REDIS_ADDR to run.
func TestConformance(t *testing.T) {
	addr := os.Getenv("ARC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARC_TEST_REDIS_ADDR not set")
	}

	physicaltest.Run(t, func(t *testing.T) physical.Backend {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
		if err := client.Ping(context.Background()).Err(); err != nil {
			t.Skipf("redis unreachable: %v", err)
		}
		prefix := "arc-registrar:test:" + uuid.NewString() + ":"
		be := NewWithClient(client, prefix)
		t.Cleanup(func() {
			cleanup := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
			defer cleanup.Close()
			iter := cleanup.Scan(context.Background(), 0, prefix+"*", 0).Iterator()
			for iter.Next(context.Background()) {
				cleanup.Del(context.Background(), iter.Val())
			}
			be.Close()
		})
		return be
	})
}

func TestFactoryRequiresAddr(t *testing.T) {
	if _, err := NewFactory(context.Background(), map[string]string{KeyAddr: ""}); err == nil {
		t.Fatal("expected config error for empty addr")
	}
}

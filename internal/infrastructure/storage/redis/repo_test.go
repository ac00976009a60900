package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"tradefeed/internal/domain/model"
)

func TestChannelNaming(t *testing.T) {
	r := New(nil, "", 0)
	if got := r.Channel("CRYPTO:BTC@USDT_SPOT|1m"); got != "tradefeed:ticks:CRYPTO:BTC@USDT_SPOT|1m" {
		t.Errorf("channel = %q", got)
	}
}

// TestWriteTickPublishes 需要 TRADEFEED_TEST_REDIS_ADDR 指向可用的 Redis
func TestWriteTickPublishes(t *testing.T) {
	addr := os.Getenv("TRADEFEED_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRADEFEED_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo := New(rdb, "tradefeed-test", time.Minute)
	key := "CRYPTO:BTC@USDT_SPOT|1m"
	sub := rdb.Subscribe(ctx, repo.Channel(key))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	point := model.KLinePoint{Timestamp: 60_000, Open: 1, High: 2, Low: 1, Close: 2, Volume: 3}
	if err := repo.WriteTick(ctx, key, point); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Payload == "" {
		t.Error("empty payload")
	}

	got, ok, err := repo.Latest(ctx, key)
	if err != nil || !ok || got.Close != 2 {
		t.Errorf("Latest = %+v %v %v", got, ok, err)
	}
}

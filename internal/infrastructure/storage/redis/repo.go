package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
)

// Repo 实时 K 线写入 Redis：hash 保存每个流的最新一根，同时 PUBLISH 给订阅者
type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
}

// Tick 写入 Redis 的载荷
type Tick struct {
	Stream string `json:"stream"`
	model.KLinePoint
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "tradefeed"
	}
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
	}
}

// Channel 某个流的发布频道
func (r *Repo) Channel(key string) string {
	return r.prefix + ":ticks:" + key
}

func (r *Repo) WriteTick(ctx context.Context, key string, point model.KLinePoint) error {
	b, err := json.Marshal(Tick{Stream: key, KLinePoint: point})
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, key, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.Channel(key), string(b))
	_, err = pipe.Exec(ctx)
	return err
}

// Latest 读取某个流最近写入的一根
func (r *Repo) Latest(ctx context.Context, key string) (model.KLinePoint, bool, error) {
	s, err := r.rdb.HGet(ctx, r.keyLatest, key).Result()
	if errors.Is(err, redis.Nil) {
		return model.KLinePoint{}, false, nil
	}
	if err != nil {
		return model.KLinePoint{}, false, err
	}
	var t Tick
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return model.KLinePoint{}, false, err
	}
	return t.KLinePoint, true, nil
}

// Close 客户端由创建方关闭
func (r *Repo) Close() error { return nil }

var _ port.TickSink = (*Repo)(nil)

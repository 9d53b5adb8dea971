package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/compose"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/redis/go-redis/v9"
)

// keyPrefix redis 中 checkpoint 的 key 前缀
const keyPrefix = "deepdive:checkpoint:"

// memory 进程内状态存储点，用 checkPointID（即线程ID）索引
type memory struct {
	mu  sync.RWMutex
	buf map[string][]byte
}

// NewMemory 创建进程内存储点，进程重启后状态丢失
func NewMemory() compose.CheckPointStore {
	return &memory{buf: make(map[string][]byte)}
}

func (c *memory) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.buf[checkPointID]
	return data, ok, nil
}

func (c *memory) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[checkPointID] = checkPoint
	return nil
}

// redisStore 持久化存储点，等待审核的线程可以跨进程恢复
type redisStore struct {
	cli redis.UniversalClient
	ttl time.Duration
}

// NewRedis 基于 redis 创建存储点，ttl 为 0 表示不过期
func NewRedis(cli redis.UniversalClient, ttl time.Duration) compose.CheckPointStore {
	return &redisStore{cli: cli, ttl: ttl}
}

func (r *redisStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	data, err := r.cli.Get(ctx, keyPrefix+checkPointID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		slog.Error("redisStore Get failed, id = %s, err = %+v", checkPointID, err)
		return nil, false, fmt.Errorf("get checkpoint %s: %w", checkPointID, err)
	}
	return data, true, nil
}

func (r *redisStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	if err := r.cli.Set(ctx, keyPrefix+checkPointID, checkPoint, r.ttl).Err(); err != nil {
		slog.Error("redisStore Set failed, id = %s, err = %+v", checkPointID, err)
		return fmt.Errorf("set checkpoint %s: %w", checkPointID, err)
	}
	return nil
}

// New 根据配置选择存储点：配置了 redis 地址时使用 redis，否则使用内存
func New(ctx context.Context, cfg conf.RedisConfig) (compose.CheckPointStore, error) {
	if cfg.Addr == "" {
		slog.Info("checkpoint store: memory")
		return NewMemory(), nil
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	slog.Info("checkpoint store: redis %s", cfg.Addr)
	return NewRedis(cli, time.Duration(cfg.TTLSeconds)*time.Second), nil
}

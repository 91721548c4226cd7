package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld 表示该会话已有一个进行中的生成。
var ErrLockHeld = errors.New("generation already in progress")

// GenerationLock 保证每个会话同一时刻只有一个进行中的流式生成。
type GenerationLock interface {
	// Acquire 获取会话的生成租约；已被占用时返回 ErrLockHeld。返回的 release 可重复调用。
	Acquire(ctx context.Context, conversationID string) (release func(), err error)
}

// releaseScript 仅当值仍为本次持有的令牌时才删除 key，避免误删租约过期后他人获取的锁。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// defaultLockTTL 在未配置租约时长时使用，保证异常退出后锁最终过期。
const defaultLockTTL = 10 * time.Minute

type redisGenerationLock struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisGenerationLock 创建基于 Redis SET NX 租约的生成锁。ttl <= 0 时使用 defaultLockTTL。
func NewRedisGenerationLock(redisClient *redis.Client, ttl time.Duration) GenerationLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &redisGenerationLock{redisClient: redisClient, ttl: ttl}
}

func (l *redisGenerationLock) Acquire(ctx context.Context, conversationID string) (func(), error) {
	key := fmt.Sprintf("conversation:%s:generating", conversationID)
	token := uuid.NewString()
	ok, err := l.redisClient.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// 释放时使用后台上下文，请求上下文可能已被取消
			_ = releaseScript.Run(context.Background(), l.redisClient, []string{key}, token).Err()
		})
	}, nil
}

type localGenerationLock struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewLocalGenerationLock 创建进程内的生成锁，适用于未配置 Redis 的单进程部署。
func NewLocalGenerationLock() GenerationLock {
	return &localGenerationLock{active: make(map[string]struct{})}
}

func (l *localGenerationLock) Acquire(_ context.Context, conversationID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.active[conversationID]; held {
		return nil, ErrLockHeld
	}
	l.active[conversationID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, conversationID)
			l.mu.Unlock()
		})
	}, nil
}

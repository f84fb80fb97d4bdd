package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"jasdaq.com/pkg/logger"
)

// 只有持有者才能续期/释放
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
)

type leaseClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Lease 单写者租约：同一组订单簿同一时间只能有一个进程撮合
type Lease struct {
	rdb leaseClient
	key string
	id  string // 当前节点的唯一ID
	ttl time.Duration
	now func() time.Time
}

func NewLease(rdb leaseClient, key string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Lease{
		rdb: rdb,
		key: key,
		id:  fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixNano()),
		ttl: ttl,
		now: time.Now,
	}
}

func (l *Lease) ID() string { return l.id }

// TryAcquire 抢租约；已经是自己的就续期
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	return l.Renew(ctx)
}

func (l *Lease) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.id, l.ttl.Milliseconds()).Int64()
	return n == 1, err
}

func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.id).Err()
}

// Keep 每 ttl/3 续期一次，直到 ctx 结束
// 被别人拿走立刻调用 lost；Redis 出错就下个周期重试，距上次续期成功超过 ttl 才算丢失
func (l *Lease) Keep(ctx context.Context, lost func(error)) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	lastOK := l.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := l.Renew(ctx)
			if ctx.Err() != nil {
				return
			}
			switch {
			case err == nil && ok:
				lastOK = l.now()
			case err == nil:
				lost(fmt.Errorf("lease %s taken over", l.key))
				return
			case l.now().Sub(lastOK) >= l.ttl:
				lost(fmt.Errorf("lease %s expired: %w", l.key, err))
				return
			default:
				logger.Warn(ctx, "renew lease failed, will retry", zap.String("key", l.key), zap.Error(err))
			}
		}
	}
}

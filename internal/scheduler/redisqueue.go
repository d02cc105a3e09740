package scheduler

import (
	"context"
	"time"

	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisQueue dispatches application ids through a Redis list so the API and the
// workers can run as separate processes. The store status stays the source of
// truth; a duplicate id in the list only produces a rejected claim.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *zap.SugaredLogger

	// how long one BRPOP blocks before checking ctx again
	block time.Duration
}

func NewRedisQueue(client *redis.Client, key string, log *zap.SugaredLogger) *RedisQueue {
	if key == "" {
		key = config.DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, log: log, block: 2 * time.Second}
}

func (q *RedisQueue) Dispatch(ctx context.Context, appID string) error {
	if err := q.client.LPush(ctx, q.key, appID).Err(); err != nil {
		return errors.Wrapf(err, "push %s to %s", appID, q.key)
	}
	return nil
}

// Len returns how many ids are waiting
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consume moves ids from Redis into pool until ctx is done. While the pool is
// full the id goes back on the consuming end of the list.
func (q *RedisQueue) Consume(ctx context.Context, pool *LocalPool) error {
	q.log.Infof("📡 Consuming applications from redis list %s", q.key)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if pool.Full() {
			if !sleepCtx(ctx, 200*time.Millisecond) {
				return nil
			}
			continue
		}

		res, err := q.client.BRPop(ctx, q.block, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			q.log.Errorw("❌ Redis queue read failed", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		// BRPOP returns [key, value]
		appID := res[1]

		if err := pool.Dispatch(ctx, appID); err != nil {
			if errors.Is(err, ErrPoolStopped) {
				q.requeue(appID)
				return nil
			}
			q.log.Warnw("⚠️ Pool rejected application, pushing back", "application_id", appID, "error", err)
			q.requeue(appID)
		}
	}
}

func (q *RedisQueue) requeue(appID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.RPush(ctx, q.key, appID).Err(); err != nil {
		q.log.Errorw("❌ Failed to push application back, cleanup sweep will recover it", "application_id", appID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

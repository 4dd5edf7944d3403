package histcache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vigilab/vigil/storage"
	"github.com/vigilab/vigil/vos"

	"github.com/redis/go-redis/v9"
	"github.com/toolkits/pkg/logger"
)

// RedisCache keeps the recent values of every item in a sorted set scored by
// timestamp, so multiple server instances can share one value window.
type RedisCache struct {
	redis     storage.Redis
	retention int64
}

func NewRedisCache(r storage.Redis, retention int64) *RedisCache {
	return &RedisCache{redis: r, retention: retention}
}

func redisKey(itemID int64) string {
	return fmt.Sprintf("hist:vc:%d", itemID)
}

func member(p vos.HPoint) string {
	return strconv.FormatInt(p.Ts, 10) + ":" + strconv.FormatFloat(p.Value, 'g', -1, 64)
}

func parseMember(s string) (vos.HPoint, bool) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return vos.HPoint{}, false
	}

	ts, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return vos.HPoint{}, false
	}

	v, err := strconv.ParseFloat(s[idx+1:], 64)
	if err != nil {
		return vos.HPoint{}, false
	}

	return vos.HPoint{Ts: ts, Value: v}, true
}

func (rc *RedisCache) Put(itemID int64, p vos.HPoint) {
	key := redisKey(itemID)
	cutoff := p.Ts - rc.retention

	ctx := context.Background()
	pipe := rc.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(p.Ts), Member: member(p)})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprint(cutoff-1))
	pipe.Expire(ctx, key, time.Duration(rc.retention)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Errorf("failed to cache value of item %d in redis: %v", itemID, err)
	}
}

func (rc *RedisCache) Get(itemID int64, since int64) []vos.HPoint {
	members, err := rc.redis.ZRevRangeByScore(context.Background(), redisKey(itemID), &redis.ZRangeBy{
		Min: fmt.Sprint(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		logger.Errorf("failed to read cached values of item %d from redis: %v", itemID, err)
		return nil
	}

	vs := make([]vos.HPoint, 0, len(members))
	for _, m := range members {
		if p, ok := parseMember(m); ok {
			vs = append(vs, p)
		}
	}
	return vs
}

func (rc *RedisCache) Last(itemID int64, shift int) (vos.HPoint, bool) {
	members, err := rc.redis.ZRevRange(context.Background(), redisKey(itemID), int64(shift), int64(shift)).Result()
	if err != nil {
		logger.Errorf("failed to read cached values of item %d from redis: %v", itemID, err)
		return vos.HPoint{}, false
	}

	if len(members) == 0 {
		return vos.HPoint{}, false
	}
	return parseMember(members[0])
}

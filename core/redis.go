package core

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/go-redis/redis/v8"
	"mining-coordinator/config"
	"mining-coordinator/model"
	"mining-coordinator/util"
	"strconv"
	"strings"
	"time"
)

const Separator = ":"

// LeaderboardCache 排行榜缓存；结算后失效
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) ([]model.Account, bool)
	Set(ctx context.Context, limit int, accounts []model.Account) error
	Invalidate(ctx context.Context) error
}

type Redis struct {
	Prefix string
	Client *redis.Client

	ttl time.Duration
}

func NewRedis(cfg *config.Redis) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     *cfg.Url,
		Password: *cfg.Password,
		DB:       *cfg.Database,
		PoolSize: *cfg.PoolSize,
	})

	return &Redis{
		Prefix: *cfg.Prefix,
		Client: client,
		ttl:    util.MustParseDuration(*cfg.Ttl),
	}
}

func (r *Redis) key(parts ...string) string {
	return r.Prefix + Separator + strings.Join(parts, Separator)
}

func (r *Redis) Get(ctx context.Context, limit int) ([]model.Account, bool) {
	data, err := r.Client.Get(ctx, r.key("leaderboard", strconv.Itoa(limit))).Bytes()
	if err != nil {
		return nil, false
	}

	var accounts []model.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, false
	}
	return accounts, true
}

func (r *Redis) Set(ctx context.Context, limit int, accounts []model.Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.key("leaderboard", strconv.Itoa(limit)), data, r.ttl).Err()
}

// Invalidate 删除所有分页大小的排行榜缓存
func (r *Redis) Invalidate(ctx context.Context) error {
	iter := r.Client.Scan(ctx, 0, r.key("leaderboard", "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error {
	return r.Client.Close()
}

package core

import (
	"context"
	"mining-coordinator/model"
	"time"
)

// SettleFunc 在状态切换成功后、同一事务内计算奖励
type SettleFunc func(block *model.Block) ([]*model.Reward, error)

// Store 持久化层。
//
// CurrentBlock 原子地查找或创建唯一的 mining 块。
// CompleteBlock 以条件更新切换 mining→completed，以影响行数为准；
// settle 返回的奖励与接收者累计在同一事务内写入
type Store interface {
	CurrentBlock(ctx context.Context, create func() (*model.Block, error)) (*model.Block, error)
	Block(ctx context.Context, id int64) (*model.Block, error)
	CompleteBlock(ctx context.Context, id int64, nonce, solver string, at time.Time, settle SettleFunc) (*model.Block, []*model.Reward, error)
	BlockHistory(ctx context.Context, limit int) ([]model.Block, error)
	BlockRewards(ctx context.Context, id int64) ([]model.Reward, error)

	Leaderboard(ctx context.Context, limit int) ([]model.Account, error)
	Account(ctx context.Context, minerId string) (*model.Account, error)
	AccountRewards(ctx context.Context, minerId string) ([]model.Reward, error)
	SetEnergy(ctx context.Context, minerId string, energy int) error
	ProvisionAccount(ctx context.Context, minerId, username string) (*model.Account, error)

	Close() error
}

package core

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/config"
	"mining-coordinator/metrics"
	"mining-coordinator/model"
	"time"
)

// currentBlockLock 创建新块时的事务级咨询锁
const currentBlockLock = 0x6d696e65

type Postgres struct {
	db *pg.DB
}

func NewPostgres(ctx context.Context, cfg *config.Postgres) (*Postgres, error) {
	db := pg.Connect(&pg.Options{
		Addr:     *cfg.Address,
		User:     *cfg.Username,
		Password: *cfg.Password,
		Database: *cfg.Database,
		PoolSize: *cfg.PoolSize,
	})
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres at %s: %w", *cfg.Address, err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// CreateSchema 建表；同一时刻最多一个 mining 块由部分唯一索引保证
func (p *Postgres) CreateSchema(ctx context.Context) error {
	models := []interface{}{
		(*model.Account)(nil),
		(*model.Block)(nil),
		(*model.Reward)(nil),
	}
	for _, m := range models {
		if err := p.db.ModelContext(ctx, m).CreateTable(&orm.CreateTableOptions{IfNotExists: true}); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS blocks_single_mining ON blocks ((status)) WHERE status = 'mining'`,
		`CREATE INDEX IF NOT EXISTS rewards_block_id ON rewards (block_id)`,
		`CREATE INDEX IF NOT EXISTS rewards_miner_id ON rewards (miner_id)`,
		`CREATE INDEX IF NOT EXISTS accounts_total_rewards ON accounts (total_rewards DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

// CurrentBlock 查询进行中的块，不存在则在同一事务内创建
func (p *Postgres) CurrentBlock(ctx context.Context, create func() (*model.Block, error)) (block *model.Block, err error) {
	defer func(started time.Time) { metrics.ObserveStore("current_block", err, started) }(time.Now())

	err = p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", currentBlockLock); err != nil {
			return err
		}

		var current model.Block
		err := tx.ModelContext(ctx, &current).
			Where("status = ?", model.BlockStatusMining).
			Order("created_at DESC").
			Limit(1).
			Select()
		if err == nil {
			block = &current
			return nil
		}
		if !errors.Is(err, pg.ErrNoRows) {
			return err
		}

		created, err := create()
		if err != nil {
			return err
		}
		if _, err := tx.ModelContext(ctx, created).Returning("*").Insert(); err != nil {
			return err
		}
		block = created

		log.WithFields(log.Fields{"blockId": created.Id, "difficulty": created.Difficulty}).Info("Created new block")
		return nil
	})

	return block, err
}

func (p *Postgres) Block(ctx context.Context, id int64) (*model.Block, error) {
	block := &model.Block{Id: id}
	if err := p.db.ModelContext(ctx, block).WherePK().Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, ErrUnknownBlock
		}
		return nil, err
	}
	return block, nil
}

// CompleteBlock 条件更新 mining→completed，并在同一事务内写入奖励
func (p *Postgres) CompleteBlock(ctx context.Context, id int64, nonce, solver string, at time.Time, settle SettleFunc) (block *model.Block, rewards []*model.Reward, err error) {
	defer func(started time.Time) { metrics.ObserveStore("complete_block", err, started) }(time.Now())

	err = p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		res, err := tx.ModelContext(ctx, (*model.Block)(nil)).
			Set("status = ?", model.BlockStatusCompleted).
			Set("nonce = ?", nonce).
			Set("mined_by = ?", solver).
			Set("completed_at = ?", at).
			Where("id = ?", id).
			Where("status = ?", model.BlockStatusMining).
			Update()
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			exists, err := tx.ModelContext(ctx, (*model.Block)(nil)).Where("id = ?", id).Exists()
			if err != nil {
				return err
			}
			if !exists {
				return ErrUnknownBlock
			}
			return ErrAlreadyCompleted
		}

		block = &model.Block{Id: id}
		if err := tx.ModelContext(ctx, block).WherePK().Select(); err != nil {
			return err
		}

		rewards, err = settle(block)
		if err != nil {
			return err
		}
		if len(rewards) == 0 {
			return nil
		}

		if _, err := tx.ModelContext(ctx, &rewards).Insert(); err != nil {
			return fmt.Errorf("insert rewards: %w", err)
		}

		// 累计奖励
		for _, r := range rewards {
			res, err := tx.ModelContext(ctx, (*model.Account)(nil)).
				Set("total_rewards = total_rewards + ?", r.Amount).
				Where("miner_id = ?", r.MinerId).
				Update()
			if err != nil {
				return fmt.Errorf("increment total for %s: %w", r.MinerId, err)
			}
			if res.RowsAffected() == 0 {
				log.WithField("minerId", r.MinerId).Warn("Reward recipient has no account, total not updated")
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return block, rewards, nil
}

func (p *Postgres) BlockHistory(ctx context.Context, limit int) ([]model.Block, error) {
	var blocks []model.Block
	err := p.db.ModelContext(ctx, &blocks).
		Where("status = ?", model.BlockStatusCompleted).
		Order("id DESC").
		Limit(limit).
		Select()
	return blocks, err
}

func (p *Postgres) BlockRewards(ctx context.Context, id int64) ([]model.Reward, error) {
	var rewards []model.Reward
	err := p.db.ModelContext(ctx, &rewards).
		Where("block_id = ?", id).
		Order("id ASC").
		Select()
	return rewards, err
}

func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]model.Account, error) {
	var accounts []model.Account
	err := p.db.ModelContext(ctx, &accounts).
		Order("total_rewards DESC", "id ASC").
		Limit(limit).
		Select()
	return accounts, err
}

func (p *Postgres) Account(ctx context.Context, minerId string) (*model.Account, error) {
	var account model.Account
	if err := p.db.ModelContext(ctx, &account).Where("miner_id = ?", minerId).First(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (p *Postgres) AccountRewards(ctx context.Context, minerId string) ([]model.Reward, error) {
	var rewards []model.Reward
	err := p.db.ModelContext(ctx, &rewards).
		Where("miner_id = ?", minerId).
		Order("id DESC").
		Select()
	return rewards, err
}

func (p *Postgres) SetEnergy(ctx context.Context, minerId string, energy int) error {
	res, err := p.db.ModelContext(ctx, (*model.Account)(nil)).
		Set("energy = ?", energy).
		Where("miner_id = ?", minerId).
		Update()
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ProvisionAccount 账户不存在则创建，存在则刷新活跃时间
func (p *Postgres) ProvisionAccount(ctx context.Context, minerId, username string) (*model.Account, error) {
	account := &model.Account{
		MinerId:    minerId,
		Username:   username,
		Energy:     model.EnergyMax,
		LastActive: time.Now(),
	}
	_, err := p.db.ModelContext(ctx, account).
		OnConflict("(miner_id) DO UPDATE").
		Set("last_active = EXCLUDED.last_active").
		Returning("*").
		Insert()
	if err != nil {
		return nil, err
	}
	return account, nil
}

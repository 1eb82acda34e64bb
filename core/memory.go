package core

import (
	"context"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/model"
	"sort"
	"sync"
	"time"
)

// Memory 内存存储，单进程部署与测试使用
type Memory struct {
	mu sync.Mutex

	blocks   []*model.Block
	rewards  []*model.Reward
	accounts map[string]*model.Account

	nextBlockId  int64
	nextRewardId int64
	nextAcctId   int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*model.Account),
	}
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) CurrentBlock(ctx context.Context, create func() (*model.Block, error)) (*model.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.blocks) - 1; i >= 0; i-- {
		if m.blocks[i].Status == model.BlockStatusMining {
			b := *m.blocks[i]
			return &b, nil
		}
	}

	block, err := create()
	if err != nil {
		return nil, err
	}
	m.nextBlockId++
	block.Id = m.nextBlockId
	stored := *block
	m.blocks = append(m.blocks, &stored)

	return block, nil
}

func (m *Memory) Block(ctx context.Context, id int64) (*model.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.findBlock(id)
	if b == nil {
		return nil, ErrUnknownBlock
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) findBlock(id int64) *model.Block {
	for _, b := range m.blocks {
		if b.Id == id {
			return b
		}
	}
	return nil
}

func (m *Memory) CompleteBlock(ctx context.Context, id int64, nonce, solver string, at time.Time, settle SettleFunc) (*model.Block, []*model.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.findBlock(id)
	if stored == nil {
		return nil, nil, ErrUnknownBlock
	}
	if stored.Status != model.BlockStatusMining {
		return nil, nil, ErrAlreadyCompleted
	}

	// 在副本上切换状态，settle 失败时不落盘
	block := *stored
	block.Status = model.BlockStatusCompleted
	block.Nonce = &nonce
	block.MinedBy = &solver
	block.CompletedAt = &at

	rewards, err := settle(&block)
	if err != nil {
		return nil, nil, err
	}

	*stored = block
	for _, r := range rewards {
		m.nextRewardId++
		r.Id = m.nextRewardId
		cp := *r
		m.rewards = append(m.rewards, &cp)

		if acct, ok := m.accounts[r.MinerId]; ok {
			acct.TotalRewards += r.Amount
		} else {
			log.WithField("minerId", r.MinerId).Warn("Reward recipient has no account, total not updated")
		}
	}

	return &block, rewards, nil
}

func (m *Memory) BlockHistory(ctx context.Context, limit int) ([]model.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var history []model.Block
	for i := len(m.blocks) - 1; i >= 0 && len(history) < limit; i-- {
		if m.blocks[i].Completed() {
			history = append(history, *m.blocks[i])
		}
	}
	return history, nil
}

func (m *Memory) BlockRewards(ctx context.Context, id int64) ([]model.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rewards []model.Reward
	for _, r := range m.rewards {
		if r.BlockId == id {
			rewards = append(rewards, *r)
		}
	}
	return rewards, nil
}

func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].TotalRewards == accounts[j].TotalRewards {
			return accounts[i].Id < accounts[j].Id
		}
		return accounts[i].TotalRewards > accounts[j].TotalRewards
	})
	if len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (m *Memory) Account(ctx context.Context, minerId string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[minerId]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AccountRewards(ctx context.Context, minerId string) ([]model.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rewards []model.Reward
	for _, r := range m.rewards {
		if r.MinerId == minerId {
			rewards = append(rewards, *r)
		}
	}
	return rewards, nil
}

func (m *Memory) SetEnergy(ctx context.Context, minerId string, energy int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[minerId]
	if !ok {
		return ErrAccountNotFound
	}
	a.Energy = energy
	return nil
}

func (m *Memory) ProvisionAccount(ctx context.Context, minerId, username string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[minerId]; ok {
		a.LastActive = time.Now()
		cp := *a
		return &cp, nil
	}

	m.nextAcctId++
	a := &model.Account{
		Id:         m.nextAcctId,
		MinerId:    minerId,
		Username:   username,
		Energy:     model.EnergyMax,
		LastActive: time.Now(),
	}
	m.accounts[minerId] = a
	cp := *a
	return &cp, nil
}

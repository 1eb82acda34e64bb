package core

import (
	"context"
	"errors"
	"fmt"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"
	"mining-coordinator/metrics"
	"mining-coordinator/model"
	"mining-coordinator/util"
	"sync"
	"time"
)

const seedBytes = 32

// Presence 在线矿工快照来源
type Presence interface {
	Snapshot() []string
}

// BlockCompletedEvent 块完成且奖励已落盘
type BlockCompletedEvent struct {
	Block   *model.Block
	Rewards []*model.Reward
}

// Lifecycle 管理唯一的进行中块
type Lifecycle struct {
	store      Store
	presence   Presence
	settler    *Settler
	cache      LeaderboardCache
	difficulty int
	now        func() time.Time

	// 进程内串行化创建；跨进程由 Store 保证
	createMu sync.Mutex

	completedFeed event.Feed
}

func NewLifecycle(store Store, presence Presence, settler *Settler, difficulty int) *Lifecycle {
	return &Lifecycle{
		store:      store,
		presence:   presence,
		settler:    settler,
		difficulty: difficulty,
		now:        time.Now,
	}
}

// WithCache 设置排行榜缓存，结算后失效
func (l *Lifecycle) WithCache(cache LeaderboardCache) *Lifecycle {
	l.cache = cache
	return l
}

// SubscribeCompleted 订阅块完成事件
func (l *Lifecycle) SubscribeCompleted(ch chan<- BlockCompletedEvent) event.Subscription {
	return l.completedFeed.Subscribe(ch)
}

// CurrentBlock 返回进行中的块，没有则创建
func (l *Lifecycle) CurrentBlock(ctx context.Context) (*model.Block, error) {
	l.createMu.Lock()
	defer l.createMu.Unlock()

	return l.store.CurrentBlock(ctx, func() (*model.Block, error) {
		seed, err := util.RandomHex(seedBytes)
		if err != nil {
			return nil, fmt.Errorf("generate seed: %w", err)
		}
		return &model.Block{
			Hash:       seed,
			Difficulty: l.difficulty,
			Status:     model.BlockStatusMining,
			CreatedAt:  l.now(),
		}, nil
	})
}

// SubmitSolution 校验并完成块。
// 存储层的条件状态切换是唯一的串行点，前面的状态检查只用于提前返回
func (l *Lifecycle) SubmitSolution(ctx context.Context, blockId int64, nonce, minerId string) (*Settlement, error) {
	block, err := l.store.Block(ctx, blockId)
	if err != nil {
		l.observe(err)
		return nil, err
	}
	if block.Completed() {
		l.observe(ErrAlreadyCompleted)
		return nil, ErrAlreadyCompleted
	}
	if !Verify(block.Hash, nonce, block.Difficulty) {
		l.observe(ErrInvalidNonce)
		return nil, ErrInvalidNonce
	}

	var st *Settlement
	completed, rewards, err := l.store.CompleteBlock(ctx, blockId, nonce, minerId, l.now(), func(b *model.Block) ([]*model.Reward, error) {
		st = l.settler.Compute(b, l.presence.Snapshot())
		return st.Rewards, nil
	})
	if err != nil {
		l.observe(err)
		if errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrUnknownBlock) {
			log.WithFields(log.Fields{"blockId": blockId, "minerId": minerId}).Debugf("Solution lost the race: %v", err)
			return nil, err
		}
		log.WithFields(log.Fields{"blockId": blockId, "minerId": minerId}).Errorf("Unable to complete block: %v", err)
		return nil, err
	}
	l.observe(nil)
	metrics.AddRewardsPaid(st.Paid())

	log.WithFields(log.Fields{
		"blockId":      blockId,
		"minerId":      minerId,
		"activeMiners": st.ActiveMiners,
		"solverReward": st.SolverReward,
		"perPeer":      st.PerParticipant,
	}).Info("Block completed")

	if l.cache != nil {
		if err := l.cache.Invalidate(ctx); err != nil {
			log.Warnf("Unable to invalidate leaderboard cache: %v", err)
		}
	}
	l.completedFeed.Send(BlockCompletedEvent{Block: completed, Rewards: rewards})

	return st, nil
}

func (l *Lifecycle) observe(err error) {
	switch {
	case err == nil:
		metrics.ObserveSubmission("accepted")
	case errors.Is(err, ErrUnknownBlock):
		metrics.ObserveSubmission("unknown-block")
	case errors.Is(err, ErrAlreadyCompleted):
		metrics.ObserveSubmission("already-completed")
	case errors.Is(err, ErrInvalidNonce):
		metrics.ObserveSubmission("invalid-nonce")
	default:
		metrics.ObserveSubmission("error")
	}
}

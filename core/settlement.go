package core

import (
	"math"
	"mining-coordinator/model"
	"mining-coordinator/util"
	"time"
)

const (
	minTimeFactor     = 0.5
	maxTimeFactor     = 2.0
	maxNetworkBonus   = 2.0
	networkBonusStep  = 0.1
	maxSolverShare    = 0.7
	minSolverShare    = 0.4
	solverShareDecay  = 0.03
	defaultBaseReward = 100
)

// Settlement 一次结算的全部中间量，便于日志与测试核对
type Settlement struct {
	DurationMs           float64
	DifficultyMultiplier float64
	TimeFactor           float64
	BaseTotal            int64
	ActiveMiners         int
	NetworkBonus         float64
	AdjustedTotal        int64
	SolverShare          float64
	SolverReward         int64
	ParticipantsPool     int64
	PerParticipant       int64
	Rewards              []*model.Reward
}

// Paid 实际写入的奖励总额
func (s *Settlement) Paid() int64 {
	var sum int64
	for _, r := range s.Rewards {
		sum += r.Amount
	}
	return sum
}

// Settler 奖励结算
type Settler struct {
	baseReward      int64
	optimalDuration time.Duration
}

func NewSettler(baseReward int64, optimalDuration time.Duration) *Settler {
	if baseReward <= 0 {
		baseReward = defaultBaseReward
	}
	return &Settler{baseReward: baseReward, optimalDuration: optimalDuration}
}

// Compute 按完成时刻的在线快照计算奖励。
// 参与者奖池整除的余数不发放；只有解题者在线时奖池整体不发放
func (s *Settler) Compute(block *model.Block, online []string) *Settlement {
	st := &Settlement{}

	completedAt := time.Now()
	if block.CompletedAt != nil {
		completedAt = *block.CompletedAt
	}
	st.DurationMs = util.Millis(completedAt.Sub(block.CreatedAt))
	st.DifficultyMultiplier = math.Pow(2, float64(block.Difficulty-1))

	if st.DurationMs <= 0 {
		st.TimeFactor = maxTimeFactor
	} else {
		st.TimeFactor = util.Clamp(util.Millis(s.optimalDuration)/st.DurationMs, minTimeFactor, maxTimeFactor)
	}
	st.BaseTotal = util.Floor64(float64(s.baseReward) * st.DifficultyMultiplier * st.TimeFactor)

	st.ActiveMiners = len(online)
	st.NetworkBonus = NetworkBonus(st.ActiveMiners)
	st.AdjustedTotal = util.Floor64(float64(st.BaseTotal) * st.NetworkBonus)

	st.SolverShare = SolverShare(st.ActiveMiners)
	st.SolverReward = util.Floor64(float64(st.AdjustedTotal) * st.SolverShare)
	st.ParticipantsPool = st.AdjustedTotal - st.SolverReward

	solver := ""
	if block.MinedBy != nil {
		solver = *block.MinedBy
	}
	st.Rewards = append(st.Rewards, &model.Reward{
		BlockId:   block.Id,
		MinerId:   solver,
		Amount:    st.SolverReward,
		Kind:      model.RewardKindSolver,
		CreatedAt: completedAt,
	})

	others := make([]string, 0, len(online))
	seen := map[string]struct{}{solver: {}}
	for _, id := range online {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		others = append(others, id)
	}
	if len(others) == 0 {
		return st
	}

	st.PerParticipant = st.ParticipantsPool / int64(len(others))
	for _, id := range others {
		st.Rewards = append(st.Rewards, &model.Reward{
			BlockId:   block.Id,
			MinerId:   id,
			Amount:    st.PerParticipant,
			Kind:      model.RewardKindParticipant,
			CreatedAt: completedAt,
		})
	}

	return st
}

// NetworkBonus min(2, 1 + (n-1)*0.1)
func NetworkBonus(activeMiners int) float64 {
	return math.Min(maxNetworkBonus, 1+float64(activeMiners-1)*networkBonusStep)
}

// SolverShare clamp(0.7 - (n-1)*0.03, 0.4, 0.7)
func SolverShare(activeMiners int) float64 {
	return util.Clamp(maxSolverShare-float64(activeMiners-1)*solverShareDecay, minSolverShare, maxSolverShare)
}

package model

import "time"

const (
	RewardKindSolver      string = "solver"
	RewardKindParticipant        = "participant"
)

// Reward 奖励记录，只追加
type Reward struct {
	tableName struct{} `pg:"rewards"`

	Id        int64     `pg:"id,pk" json:"id"`
	BlockId   int64     `pg:"block_id,notnull" json:"blockId"`
	MinerId   string    `pg:"miner_id,notnull" json:"userId"`
	Amount    int64     `pg:"amount,notnull,use_zero" json:"amount"`
	Kind      string    `pg:"kind,notnull" json:"type"`
	CreatedAt time.Time `pg:"created_at,notnull" json:"createdAt"`
}

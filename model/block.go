package model

import "time"

// 状态
const (
	BlockStatusMining    string = "mining"
	BlockStatusCompleted        = "completed"
)

// Block 块对象，Hash 为出题种子
type Block struct {
	tableName struct{} `pg:"blocks"`

	Id          int64      `pg:"id,pk" json:"id"`
	Hash        string     `pg:"hash,notnull" json:"hash"`
	Difficulty  int        `pg:"difficulty,notnull,use_zero" json:"difficulty"`
	Status      string     `pg:"status,notnull" json:"status"`
	Nonce       *string    `pg:"nonce" json:"nonce"`
	MinedBy     *string    `pg:"mined_by" json:"minedBy"`
	CreatedAt   time.Time  `pg:"created_at,notnull" json:"createdAt"`
	CompletedAt *time.Time `pg:"completed_at" json:"completedAt"`
}

// Completed 是否已完成
func (b *Block) Completed() bool {
	return b.Status == BlockStatusCompleted
}

package model

import "time"

const (
	EnergyMin = 0
	EnergyMax = 100
)

// Account 矿工账户
type Account struct {
	tableName struct{} `pg:"accounts"`

	Id           int64     `pg:"id,pk" json:"id"`
	MinerId      string    `pg:"miner_id,unique,notnull" json:"telegramId"`
	Username     string    `pg:"username,notnull" json:"username"`
	Energy       int       `pg:"energy,notnull,use_zero" json:"energy"`
	TotalRewards int64     `pg:"total_rewards,notnull,use_zero" json:"totalRewards"`
	LastActive   time.Time `pg:"last_active,notnull" json:"lastActive"`
}

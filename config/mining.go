package config

// Mining 出块与奖励
type Mining struct {
	Difficulty      *int    `json:"difficulty"`
	BaseReward      *int64  `json:"baseReward"`
	OptimalDuration *string `json:"optimalDuration"`
}

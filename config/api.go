package config

// Api HTTP 接口
type Api struct {
	Listen           *string  `json:"listen"`
	ReadTimeout      *string  `json:"readTimeout"`
	WriteTimeout     *string  `json:"writeTimeout"`
	CorsOrigins      []string `json:"corsOrigins"`
	HistoryLimit     *int     `json:"historyLimit"`
	LeaderboardLimit *int     `json:"leaderboardLimit"`

	// 每秒允许的提交/信令次数，0 表示不限制
	SubmitRate  *float64 `json:"submitRate"`
	SubmitBurst *int     `json:"submitBurst"`
	SignalRate  *float64 `json:"signalRate"`
	SignalBurst *int     `json:"signalBurst"`
}

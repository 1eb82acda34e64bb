package config

func String(v string) *string    { return &v }
func Int(v int) *int             { return &v }
func Int64(v int64) *int64       { return &v }
func Bool(v bool) *bool          { return &v }
func Float64(v float64) *float64 { return &v }

// Default 默认配置，配置文件中的字段会覆盖这里的值
func Default() *Config {
	return &Config{
		Name:    String("mining-coordinator"),
		Storage: String(StoragePostgres),
		Logger: &Logger{
			Level:  String("info"),
			Format: String("text"),
			File:   String(""),
		},
		Api: &Api{
			Listen:           String(":5000"),
			ReadTimeout:      String("15s"),
			WriteTimeout:     String("15s"),
			HistoryLimit:     Int(10),
			LeaderboardLimit: Int(10),
			SubmitRate:       Float64(0),
			SubmitBurst:      Int(1),
			SignalRate:       Float64(0),
			SignalBurst:      Int(1),
		},
		Presence: &Presence{
			IdleTimeout:  String("2m"),
			PingInterval: String("30s"),
			WriteTimeout: String("10s"),
			SendQueue:    Int(64),
			MaxFrameSize: Int64(64 * 1024),
		},
		Mining: &Mining{
			Difficulty:      Int(6),
			BaseReward:      Int64(100),
			OptimalDuration: String("5m"),
		},
		Postgres: &Postgres{
			Address:  String("127.0.0.1:5432"),
			Database: String("mining"),
			Username: String("postgres"),
			Password: String(""),
			PoolSize: Int(20),
		},
		Redis: &Redis{
			Enabled:  Bool(false),
			Url:      String("127.0.0.1:6379"),
			Password: String(""),
			Prefix:   String("mining"),
			Database: Int(0),
			PoolSize: Int(10),
			Ttl:      String("30s"),
		},
	}
}

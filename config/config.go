package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Name    *string `json:"name"`
	Storage *string `json:"storage"`

	Logger   *Logger   `json:"logger"`
	Api      *Api      `json:"api"`
	Presence *Presence `json:"presence"`
	Mining   *Mining   `json:"mining"`
	Postgres *Postgres `json:"postgres"`
	Redis    *Redis    `json:"redis"`
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// MaxDifficulty sha256 十六进制摘要的位数
const MaxDifficulty = 64

var ErrInvalidConfig = errors.New("invalid configuration")

// Validate 启动前检查配置
func (c *Config) Validate() error {
	if c.Mining == nil || c.Mining.Difficulty == nil || c.Mining.BaseReward == nil || c.Mining.OptimalDuration == nil {
		return fmt.Errorf("%w: mining section is required", ErrInvalidConfig)
	}
	if d := *c.Mining.Difficulty; d < 1 || d > MaxDifficulty {
		return fmt.Errorf("%w: mining.difficulty must be within 1..%d, got %d", ErrInvalidConfig, MaxDifficulty, d)
	}
	if *c.Mining.BaseReward <= 0 {
		return fmt.Errorf("%w: mining.baseReward must be positive", ErrInvalidConfig)
	}
	if d, err := time.ParseDuration(*c.Mining.OptimalDuration); err != nil || d <= 0 {
		return fmt.Errorf("%w: mining.optimalDuration %q", ErrInvalidConfig, *c.Mining.OptimalDuration)
	}
	if c.Storage == nil || (*c.Storage != StoragePostgres && *c.Storage != StorageMemory) {
		return fmt.Errorf("%w: storage must be %q or %q", ErrInvalidConfig, StoragePostgres, StorageMemory)
	}
	return nil
}

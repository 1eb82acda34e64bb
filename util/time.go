package util

import (
	"time"
)

// MustParseDuration 将字符串转换成时段
func MustParseDuration(s string) time.Duration {
	value, err := time.ParseDuration(s)
	if err != nil {
		panic("Can't parse duration `" + s + "`: " + err.Error())
	}
	return value
}

// Millis 时段的毫秒数（浮点）
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

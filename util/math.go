package util

import "math"

// Clamp 将数值限制在 [lo, hi] 区间
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Floor64 向下取整并转换为 int64
func Floor64(v float64) int64 {
	return int64(math.Floor(v))
}

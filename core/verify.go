package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxDifficulty 十六进制哈希的总位数
const MaxDifficulty = sha256.Size * 2

// SolutionHash sha256(seed ‖ nonce) 的小写十六进制
func SolutionHash(seed, nonce string) string {
	sum := sha256.Sum256([]byte(seed + nonce))
	return hex.EncodeToString(sum[:])
}

// Verify 哈希前 difficulty 位十六进制是否全为 0
func Verify(seed, nonce string, difficulty int) bool {
	if difficulty <= 0 || difficulty > MaxDifficulty {
		return false
	}
	return strings.HasPrefix(SolutionHash(seed, nonce), strings.Repeat("0", difficulty))
}

package util

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

var minerIdPattern = regexp.MustCompile(`^[0-9A-Za-z_.:@-]{1,64}$`)

// IsValidMinerId 矿工标识是否合法
func IsValidMinerId(s string) bool {
	return minerIdPattern.MatchString(s)
}

// RandomHex 生成指定字节数的随机十六进制串
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package utils

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

const lowerAlnum = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateURLToken 生成 URL-safe 的随机 token，长度约为 4/3*n 字符
// n 为原始随机字节数，推荐 24 或 32
func GenerateURLToken(n int) (string, error) {
	if n <= 0 {
		n = 24
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomLowerAlnum 生成 n 位小写字母数字串，用于兜底 slug
func RandomLowerAlnum(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(lowerAlnum)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 不可用时退化为固定字符，slug 冲突会在唯一索引处被拦截
			out[i] = lowerAlnum[i%len(lowerAlnum)]
			continue
		}
		out[i] = lowerAlnum[idx.Int64()]
	}
	return string(out)
}

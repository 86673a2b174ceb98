package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateTxRef 生成对账键
// 形如 gby-20060102150405-3f2a9c，时间戳保证可读，随机尾缀避免同秒碰撞
func GenerateTxRef() string {
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("gby-%s-%s", time.Now().Format("20060102150405"), hex.EncodeToString(b))
}

// GenerateNonceStr 生成随机字符串
func GenerateNonceStr() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

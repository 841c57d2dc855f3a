package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signer 对规范化后的请求载荷计算签名
// 签名是确定性的：相同载荷与密钥总是得到相同签名；
// 空密钥表示禁用签名，返回空字符串而不是"用空密钥签名"
type Signer interface {
	Sign(payload interface{}, secret string) (string, error)
}

// HMACSigner 基于HMAC-SHA256的默认签名实现
// 载荷先做规范化JSON编码（map按键排序），再计算摘要
type HMACSigner struct{}

// NewHMACSigner 创建HMAC签名器
func NewHMACSigner() *HMACSigner {
	return &HMACSigner{}
}

// Sign 计算签名，输出小写十六进制
func (s *HMACSigner) Sign(payload interface{}, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

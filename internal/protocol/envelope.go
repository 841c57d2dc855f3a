package protocol

import (
	"fmt"
	"time"

	"rpclink/internal/sign"
)

const (
	// Version 客户端协议版本
	Version = "1.0"

	// RPCHeader 结构化模式的HTTP标记头
	RPCHeader = "X-RPC"
	// RPCHeaderValue 标记头的值
	RPCHeaderValue = "1"
)

// Envelope 结构化模式的请求信封，每次调用构建一次
type Envelope struct {
	Version string        `json:"version"`
	Args    []interface{} `json:"args"`
	Time    float64       `json:"time"` // Unix时间戳，亚秒精度
	Handler string        `json:"handler"`
	Method  string        `json:"method"`
	Sig     string        `json:"sig"`
}

// NewEnvelope 构建请求信封，时间取当前时刻
func NewEnvelope(handler, method string, args []interface{}) *Envelope {
	if args == nil {
		args = []interface{}{}
	}
	return &Envelope{
		Version: Version,
		Args:    args,
		Time:    float64(time.Now().UnixNano()) / float64(time.Second),
		Handler: handler,
		Method:  method,
	}
}

// SignWith 计算信封签名并写入Sig字段
// 签名覆盖除Sig外的全部信封字段；空密钥得到空签名
func (e *Envelope) SignWith(signer sign.Signer, secret string) error {
	sig, err := signer.Sign(map[string]interface{}{
		"version": e.Version,
		"args":    e.Args,
		"time":    e.Time,
		"handler": e.Handler,
		"method":  e.Method,
	}, secret)
	if err != nil {
		return fmt.Errorf("failed to sign envelope: %w", err)
	}
	e.Sig = sig
	return nil
}

// LegacyPayload 旧式（非RPC）模式的扁平参数载荷
// 签名只覆盖原始参数本身，不含sig字段；时间与方法名不参与签名
func LegacyPayload(args map[string]interface{}, signer sign.Signer, secret string) (map[string]interface{}, error) {
	sig, err := signer.Sign(args, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign legacy payload: %w", err)
	}

	payload := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		payload[k] = v
	}
	payload["sig"] = sig
	return payload, nil
}

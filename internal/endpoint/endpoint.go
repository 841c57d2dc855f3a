package endpoint

import (
	"time"

	"rpclink/internal/config"
)

// Endpoint 已解析的服务端点，注册表缓存后在进程内共享
// 除缓存写入外不再变更；按调用链绑定的handler不属于端点本身
type Endpoint struct {
	config.Resolved
}

// IsTCP 判断是否走TCP传输
func (e *Endpoint) IsTCP() bool {
	return e.Scheme == "tcp"
}

// Timeout 返回配置的超时时间，0表示使用协作方默认值
func (e *Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutMillis) * time.Millisecond
}

// SigningEnabled 判断是否启用签名
func (e *Endpoint) SigningEnabled() bool {
	return e.Secret != ""
}

package config

import (
	"fmt"
	"strings"

	"rpclink/internal/types"
	"rpclink/internal/utils"
)

// 内置默认值，优先级最低的配置层
const (
	DefaultVerb    = "POST"
	DefaultURLPath = "/"
)

// Resolved 合并三层配置后的有效服务设置
// 合并顺序：版本层 > 根层 > 内置默认值
type Resolved struct {
	Service       string // 完整服务名称，如 "user.1"
	Root          string // 根服务名称，如 "user"
	Host          string // 带scheme前缀的地址，原样传给传输层
	Scheme        string // http/https/tcp，由Host推导
	UseRPC        bool
	URLPath       string
	Verb          string
	TimeoutMillis int
	Secret        string
	MaxRPS        int
	Breaker       bool
}

// Resolve 解析服务名称为有效配置
// host只从根层读取，版本层的host覆盖不生效；
// useRpc/timeout/secret各自独立回退；urlPath/verb只读版本层条目
func Resolve(services map[string]ServiceConfig, name string) (Resolved, error) {
	if err := utils.ValidateServiceName(name); err != nil {
		return Resolved{}, types.NewConfigError(name, err)
	}

	root, _ := utils.SplitServiceName(name)
	rootCfg, rootOK := services[root]
	versionCfg, versionOK := services[name]
	if !rootOK && !versionOK {
		return Resolved{}, types.NewConfigError(name, fmt.Errorf("service is not configured"))
	}

	r := Resolved{
		Service: name,
		Root:    root,
		Host:    rootCfg.Host,
		UseRPC:  false,
		URLPath: DefaultURLPath,
		Verb:    DefaultVerb,
	}

	if r.Host == "" {
		return Resolved{}, types.NewConfigError(name, types.ErrMissingHost)
	}

	scheme, err := schemeOf(r.Host)
	if err != nil {
		return Resolved{}, types.NewConfigError(name, err)
	}
	r.Scheme = scheme

	// useRpc/timeout/secret：版本层优先，其次根层，最后默认值
	if versionCfg.UseRPC != nil {
		r.UseRPC = *versionCfg.UseRPC
	} else if rootCfg.UseRPC != nil {
		r.UseRPC = *rootCfg.UseRPC
	}
	if versionCfg.Timeout != nil {
		r.TimeoutMillis = *versionCfg.Timeout
	} else if rootCfg.Timeout != nil {
		r.TimeoutMillis = *rootCfg.Timeout
	}
	if versionCfg.Secret != nil {
		r.Secret = *versionCfg.Secret
	} else if rootCfg.Secret != nil {
		r.Secret = *rootCfg.Secret
	}

	// urlPath/verb：只读版本层条目，不回退到根层
	if versionCfg.URLPath != "" {
		r.URLPath = versionCfg.URLPath
	}
	if versionCfg.Verb != "" {
		r.Verb = strings.ToUpper(versionCfg.Verb)
	}

	// 限流与熔断取版本层条目，未配置时取根层
	if versionCfg.MaxRPS > 0 {
		r.MaxRPS = versionCfg.MaxRPS
	} else {
		r.MaxRPS = rootCfg.MaxRPS
	}
	r.Breaker = versionCfg.Breaker || rootCfg.Breaker

	if r.TimeoutMillis < 0 {
		return Resolved{}, types.NewConfigError(name, fmt.Errorf("timeout cannot be negative: %d", r.TimeoutMillis))
	}
	if r.Verb != "GET" && r.Verb != "POST" {
		return Resolved{}, types.NewConfigError(name, fmt.Errorf("verb must be GET or POST, got %q", r.Verb))
	}
	// 非结构化调用无法在裸TCP上成帧
	if r.Scheme == "tcp" && !r.UseRPC {
		return Resolved{}, types.NewConfigError(name, types.ErrTCPRequiresRPC)
	}

	return r, nil
}

// schemeOf 取host首个冒号之前的子串作为scheme
func schemeOf(host string) (string, error) {
	idx := strings.Index(host, ":")
	if idx <= 0 {
		return "", types.ErrInvalidScheme
	}
	scheme := host[:idx]
	switch scheme {
	case "http", "https", "tcp":
		return scheme, nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrInvalidScheme, scheme)
	}
}

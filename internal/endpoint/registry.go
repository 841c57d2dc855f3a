package endpoint

import (
	"sync"

	"go.uber.org/zap"

	"rpclink/internal/config"
	"rpclink/internal/utils"
)

// Registry 进程级端点注册表
// 每个服务名称的端点只构建一次，之后所有调用方共享同一实例；
// 解析失败不缓存，下次调用会重新尝试
type Registry struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	provider  config.Provider
	logger    *zap.Logger
}

// Option 注册表选项
type Option func(*Registry)

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = utils.EnsureLogger(logger)
	}
}

// NewRegistry 创建端点注册表
// 配置热加载后自动清空缓存，新的解析会读取新配置
func NewRegistry(provider config.Provider, opts ...Option) *Registry {
	r := &Registry{
		endpoints: make(map[string]*Endpoint),
		provider:  provider,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	provider.Watch(func(*config.Config) {
		r.Reset()
	})

	return r
}

// Resolve 解析服务名称为端点
// 首次解析读取配置并缓存，后续返回缓存实例；
// 同名并发解析被互斥锁串行化，保证同一名称最多只有一个端点实例
func (r *Registry) Resolve(name string) (*Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.endpoints[name]; ok {
		return ep, nil
	}

	resolved, err := config.Resolve(r.provider.Get().Services, name)
	if err != nil {
		return nil, err
	}

	ep := &Endpoint{Resolved: resolved}
	r.endpoints[name] = ep
	r.logger.Debug("endpoint resolved",
		zap.String("service", name),
		zap.String("host", ep.Host),
		zap.String("scheme", ep.Scheme),
		zap.Bool("useRpc", ep.UseRPC))

	return ep, nil
}

// Reset 清空端点缓存
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = make(map[string]*Endpoint)
	r.logger.Debug("endpoint cache reset")
}

// Len 返回缓存的端点数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

package pkg

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rpclink/internal/config"
	"rpclink/internal/endpoint"
	"rpclink/internal/transport"
	"rpclink/internal/transport/conn"
	"rpclink/internal/utils"
)

// Client 定义公开的客户端接口，供外部调用
// 同一个服务名称在进程内共享同一个端点实例
type Client interface {
	// Service 解析服务名称并返回绑定该端点的调用器
	Service(name string) (*ServiceCaller, error)
	// Close 释放客户端持有的资源
	Close() error
}

// 内部实现结构体，隐藏实现细节
type client struct {
	registry   *endpoint.Registry
	dispatcher *transport.Dispatcher
	provider   config.Provider
	logger     *zap.Logger
}

// Option 客户端选项
type Option func(*clientOptions)

type clientOptions struct {
	logger         *zap.Logger
	dispatcherOpts []transport.DispatcherOption
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithDispatcherOptions 透传派发器选项（协作方替换、响应后处理等）
func WithDispatcherOptions(opts ...transport.DispatcherOption) Option {
	return func(o *clientOptions) {
		o.dispatcherOpts = append(o.dispatcherOpts, opts...)
	}
}

// NewClient 创建客户端实例
// 参数: provider - 配置提供者
// 返回: Client接口实例
func NewClient(provider config.Provider, opts ...Option) Client {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}
	logger := utils.EnsureLogger(o.logger)

	// 传输配置块驱动默认TCP连接池，之后的选项可以整体替换协作方
	dispatcherOpts := append([]transport.DispatcherOption{
		transport.WithLogger(logger),
		transport.WithTCPPoolConfig(poolConfigFrom(provider.Get())),
	}, o.dispatcherOpts...)

	return &client{
		registry:   endpoint.NewRegistry(provider, endpoint.WithLogger(logger)),
		dispatcher: transport.NewDispatcher(dispatcherOpts...),
		provider:   provider,
		logger:     logger,
	}
}

// poolConfigFrom 由传输配置块构建连接池配置
// 未设置的字段保持连接池的默认值
func poolConfigFrom(cfg *config.Config) *conn.PoolConfig {
	poolCfg := conn.DefaultPoolConfig()
	if cfg == nil {
		return poolCfg
	}

	t := cfg.Transport
	if t.MaxConnections > 0 {
		poolCfg.MaxSize = t.MaxConnections
	}
	if t.MaxIdleTime > 0 {
		poolCfg.MaxIdleTime = time.Duration(t.MaxIdleTime)
	}
	if t.HealthCheckInterval > 0 {
		poolCfg.HealthCheckInterval = time.Duration(t.HealthCheckInterval)
	}
	if t.DialRetryCount > 0 {
		poolCfg.DialRetryCount = t.DialRetryCount
	}
	if t.InitialBackoff > 0 {
		poolCfg.InitialBackoff = time.Duration(t.InitialBackoff)
	}
	if t.MaxBackoff > 0 {
		poolCfg.MaxBackoff = time.Duration(t.MaxBackoff)
	}
	return poolCfg
}

// Service 解析服务名称为调用器
func (c *client) Service(name string) (*ServiceCaller, error) {
	ep, err := c.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return &ServiceCaller{
		endpoint:   ep,
		dispatcher: c.dispatcher,
	}, nil
}

// Close 释放资源
func (c *client) Close() error {
	if err := c.dispatcher.Close(); err != nil {
		return err
	}
	return c.provider.Close()
}

// ServiceCaller 绑定单个服务端点的调用器
// handler按调用链绑定在调用器上，缓存的端点保持不可变
type ServiceCaller struct {
	endpoint   *endpoint.Endpoint
	handler    string
	dispatcher *transport.Dispatcher
}

// Handler 绑定远端接收单元名称，返回新调用器便于链式调用
func (s *ServiceCaller) Handler(name string) *ServiceCaller {
	next := *s
	next.handler = name
	return &next
}

// Endpoint 返回底层端点
func (s *ServiceCaller) Endpoint() *endpoint.Endpoint {
	return s.endpoint
}

// Invoke 调用任意远程方法
// 首个参数必须是有效的执行上下文，方法名原样转发给远端；
// 结构化模式下args按序进入信封，旧式模式要求唯一的扁平参数表
func (s *ServiceCaller) Invoke(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return s.dispatcher.Dispatch(ctx, s.endpoint, s.handler, method, args)
}

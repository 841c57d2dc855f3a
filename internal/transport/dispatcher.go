package transport

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"rpclink/internal/endpoint"
	"rpclink/internal/protocol"
	"rpclink/internal/sign"
	"rpclink/internal/transport/conn"
	"rpclink/internal/types"
	"rpclink/internal/utils"
)

// Hook 响应后处理回调，默认恒等
// HTTP与TCP两条路径都会经过，调用方看到的行为与传输无关
type Hook func(decoded interface{}) (interface{}, error)

// identityHook 默认后处理实现
func identityHook(decoded interface{}) (interface{}, error) {
	return decoded, nil
}

// Dispatcher 传输派发器
// 按端点scheme选择HTTP或TCP路径，构建并签名请求载荷，
// 等待协作方I/O后解码响应并归类错误
type Dispatcher struct {
	httpCaller HTTPCaller
	tcpCaller  TCPCaller
	signer     sign.Signer
	hook       Hook
	logger     *zap.Logger
	poolConfig *conn.PoolConfig
}

// DispatcherOption 派发器选项
type DispatcherOption func(*Dispatcher)

// WithHTTPCaller 设置HTTP协作方
func WithHTTPCaller(caller HTTPCaller) DispatcherOption {
	return func(d *Dispatcher) {
		d.httpCaller = caller
	}
}

// WithTCPCaller 设置TCP协作方
func WithTCPCaller(caller TCPCaller) DispatcherOption {
	return func(d *Dispatcher) {
		d.tcpCaller = caller
	}
}

// WithTCPPoolConfig 设置默认TCP协作方的连接池配置
// 通过WithTCPCaller替换协作方后此选项不生效
func WithTCPPoolConfig(cfg *conn.PoolConfig) DispatcherOption {
	return func(d *Dispatcher) {
		d.poolConfig = cfg
	}
}

// WithSigner 设置签名器
func WithSigner(signer sign.Signer) DispatcherOption {
	return func(d *Dispatcher) {
		d.signer = signer
	}
}

// WithResponseHook 设置响应后处理回调
// 集成方可在不改动派发逻辑的情况下做服务特定的解包
func WithResponseHook(hook Hook) DispatcherOption {
	return func(d *Dispatcher) {
		if hook != nil {
			d.hook = hook
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = utils.EnsureLogger(logger)
	}
}

// NewDispatcher 创建派发器
// 未指定协作方时使用内置的池化实现
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		signer: sign.NewHMACSigner(),
		hook:   identityHook,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.httpCaller == nil {
		d.httpCaller = NewPooledHTTPCaller(d.logger)
	}
	if d.tcpCaller == nil {
		d.tcpCaller = NewPooledTCPCaller(conn.NewPool(d.poolConfig, nil, d.logger), d.logger)
	}
	return d
}

// Dispatch 派发一次远程调用
// ctx为调用执行上下文，校验失败立即返回调用错误，不触碰任何传输协作方；
// 方法名不做白名单校验，原样转发给远端
func (d *Dispatcher) Dispatch(ctx context.Context, ep *endpoint.Endpoint, handler, method string, args []interface{}) (interface{}, error) {
	if ctx == nil {
		return nil, types.NewInvocationError(method, types.ErrNilContext)
	}
	if method == "" {
		return nil, types.NewInvocationError(method, types.ErrEmptyMethodName)
	}

	callID := utils.GenerateCallID()
	start := time.Now()
	logger := d.logger.With(
		zap.String("callId", callID),
		zap.String("service", ep.Service),
		zap.String("method", method),
		zap.String("scheme", ep.Scheme))

	var result interface{}
	var err error
	if ep.IsTCP() {
		result, err = d.dispatchTCP(ctx, ep, handler, method, args)
	} else {
		result, err = d.dispatchHTTP(ctx, ep, handler, method, args)
	}

	if err != nil {
		logger.Error("dispatch failed", zap.Error(err))
		return nil, err
	}

	logger.Debug("dispatch completed", zap.Duration("latency", time.Since(start)))
	return result, nil
}

// dispatchTCP TCP路径：总是构建结构化信封（TCP要求useRpc）
func (d *Dispatcher) dispatchTCP(ctx context.Context, ep *endpoint.Endpoint, handler, method string, args []interface{}) (interface{}, error) {
	env := protocol.NewEnvelope(handler, method, args)
	if err := env.SignWith(d.signer, ep.Secret); err != nil {
		return nil, types.NewInvocationError(method, err)
	}

	raw, err := d.tcpCaller.Call(ctx, &TCPRequest{
		Host:      ep.Host,
		Frame:     protocol.NewFrame(env),
		Timeout:   ep.Timeout(),
		RateLimit: ep.MaxRPS,
		Breaker:   ep.Breaker,
	})
	if err != nil {
		return nil, types.NewTransportError(ep.Service, method, err)
	}

	// 协作方已完成解码，本层不再重复解析
	return d.hook(raw)
}

// dispatchHTTP HTTP路径：结构化模式发送信封，旧式模式发送扁平参数
func (d *Dispatcher) dispatchHTTP(ctx context.Context, ep *endpoint.Endpoint, handler, method string, args []interface{}) (interface{}, error) {
	var payload map[string]interface{}
	headers := make(map[string]string)

	if ep.UseRPC {
		env := protocol.NewEnvelope(handler, method, args)
		if err := env.SignWith(d.signer, ep.Secret); err != nil {
			return nil, types.NewInvocationError(method, err)
		}

		packed, err := json.Marshal(env)
		if err != nil {
			return nil, types.NewInvocationError(method, err)
		}
		payload = map[string]interface{}{
			"data": string(packed),
			"sig":  env.Sig,
		}
		headers[protocol.RPCHeader] = protocol.RPCHeaderValue
	} else {
		flat, err := legacyArgs(args)
		if err != nil {
			return nil, types.NewInvocationError(method, err)
		}
		payload, err = protocol.LegacyPayload(flat, d.signer, ep.Secret)
		if err != nil {
			return nil, types.NewInvocationError(method, err)
		}
	}

	resp, err := d.httpCaller.Call(ctx, &HTTPRequest{
		Host:      ep.Host,
		Path:      ep.URLPath,
		Verb:      ep.Verb,
		Payload:   payload,
		Headers:   headers,
		Timeout:   ep.Timeout(),
		RateLimit: ep.MaxRPS,
		Breaker:   ep.Breaker,
	})
	if err != nil {
		return nil, types.NewTransportError(ep.Service, method, err)
	}
	if resp.Body == nil {
		return nil, types.NewTransportError(ep.Service, method, types.ErrMissingBody)
	}

	var decoded interface{}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, types.NewDecodeError(string(resp.Body), err)
	}

	return d.hook(decoded)
}

// Close 关闭派发器持有的协作方资源
func (d *Dispatcher) Close() error {
	if closer, ok := d.tcpCaller.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// legacyArgs 旧式模式要求唯一参数是扁平参数表
func legacyArgs(args []interface{}) (map[string]interface{}, error) {
	if len(args) != 1 {
		return nil, types.ErrLegacyArgs
	}
	flat, ok := args[0].(map[string]interface{})
	if !ok {
		return nil, types.ErrLegacyArgs
	}
	return flat, nil
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rpclink/internal/transport/conn"
	"rpclink/internal/utils"
)

// PooledTCPCaller 基于连接池的TCP协作方实现
// 请求帧JSON编码后按长度前缀成帧发送，响应同样成帧返回并解码
type PooledTCPCaller struct {
	pool   conn.Pool
	guard  *hostGuard
	logger *zap.Logger
}

// NewPooledTCPCaller 创建TCP协作方
// pool为nil时使用默认连接池
func NewPooledTCPCaller(pool conn.Pool, logger *zap.Logger) *PooledTCPCaller {
	if pool == nil {
		pool = conn.NewPool(nil, nil, logger)
	}
	return &PooledTCPCaller{
		pool:   pool,
		guard:  newHostGuard(),
		logger: utils.EnsureLogger(logger),
	}
}

// Call 发送成帧请求并返回已解码的响应对象
func (c *PooledTCPCaller) Call(ctx context.Context, req *TCPRequest) (interface{}, error) {
	if err := c.guard.wait(ctx, req.Host, req.RateLimit); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	return c.guard.execute(req.Host, req.Breaker, func() (interface{}, error) {
		return c.send(ctx, req)
	})
}

// send 获取池化连接、发送请求帧并等待响应
func (c *PooledTCPCaller) send(ctx context.Context, req *TCPRequest) (interface{}, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	data, err := json.Marshal(req.Frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}

	addr := stripScheme(req.Host)
	connection, err := c.pool.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer c.pool.Put(connection)

	start := time.Now()
	if err := connection.Send(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to send frame: %w", err)
	}

	respData, err := connection.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}

	var result interface{}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response frame: %w", err)
	}

	c.logger.Debug("tcp call completed",
		zap.String("addr", addr),
		zap.String("conn", connection.ID()),
		zap.Duration("latency", time.Since(start)))

	return result, nil
}

// Close 关闭底层连接池
func (c *PooledTCPCaller) Close() error {
	return c.pool.Close()
}

// stripScheme 去掉host的scheme前缀得到拨号地址
// 兼容 "tcp://host:port" 与 "tcp:host:port" 两种写法
func stripScheme(host string) string {
	if idx := strings.Index(host, "://"); idx >= 0 {
		return host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx >= 0 {
		return host[idx+1:]
	}
	return host
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"rpclink/internal/utils"
)

// PooledHTTPCaller 基于net/http的HTTP协作方实现
// 按(host, timeout, headers)缓存客户端，同键请求复用连接池
type PooledHTTPCaller struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	guard   *hostGuard
	logger  *zap.Logger
}

// NewPooledHTTPCaller 创建HTTP协作方
func NewPooledHTTPCaller(logger *zap.Logger) *PooledHTTPCaller {
	return &PooledHTTPCaller{
		clients: make(map[string]*http.Client),
		guard:   newHostGuard(),
		logger:  utils.EnsureLogger(logger),
	}
}

// Call 执行HTTP请求
// POST时载荷作为JSON正文发送，GET时作为查询参数发送
func (c *PooledHTTPCaller) Call(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	if err := c.guard.wait(ctx, req.Host, req.RateLimit); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := c.guard.execute(req.Host, req.Breaker, func() (interface{}, error) {
		return c.do(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*HTTPResponse), nil
}

// do 发送请求并读取响应
func (c *PooledHTTPCaller) do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	client := c.clientFor(req)

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &HTTPResponse{Status: resp.StatusCode}
	if len(body) > 0 {
		out.Body = body
	}
	return out, nil
}

// buildRequest 构建出站HTTP请求
func (c *PooledHTTPCaller) buildRequest(ctx context.Context, req *HTTPRequest) (*http.Request, error) {
	target := strings.TrimRight(req.Host, "/") + req.Path

	var httpReq *http.Request
	var err error

	if req.Verb == http.MethodPost {
		body, merr := json.Marshal(req.Payload)
		if merr != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", merr)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	} else {
		// 非POST一律按GET发送，载荷作为查询参数
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err == nil {
			httpReq.URL.RawQuery = encodeQuery(req.Payload)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	return httpReq, nil
}

// encodeQuery 将载荷编码为查询参数
// 标量直接格式化，复合值JSON编码
func encodeQuery(payload map[string]interface{}) string {
	values := url.Values{}
	for key, value := range payload {
		switch v := value.(type) {
		case string:
			values.Set(key, v)
		case nil:
			values.Set(key, "")
		case bool, int, int64, float64:
			values.Set(key, fmt.Sprint(v))
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			values.Set(key, string(encoded))
		}
	}
	return values.Encode()
}

// clientFor 获取或创建池化客户端
func (c *PooledHTTPCaller) clientFor(req *HTTPRequest) *http.Client {
	key := clientKey(req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[key]; ok {
		return client
	}

	client := &http.Client{
		Timeout: req.Timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	c.clients[key] = client
	c.logger.Debug("http client created",
		zap.String("host", req.Host),
		zap.Duration("timeout", req.Timeout))
	return client
}

// clientKey 由host、timeout与排序后的headers生成缓存键
func clientKey(req *HTTPRequest) string {
	keys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(req.Host)
	sb.WriteByte('|')
	sb.WriteString(req.Timeout.String())
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(req.Headers[k])
	}
	return sb.String()
}

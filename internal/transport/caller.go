package transport

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"rpclink/internal/protocol"
)

// HTTPRequest HTTP协作方的出站请求
type HTTPRequest struct {
	Host      string                 // 带scheme前缀的地址，如 http://svc:80
	Path      string                 // 请求路径
	Verb      string                 // GET或POST
	Payload   map[string]interface{} // POST时作为JSON正文，GET时作为查询参数
	Headers   map[string]string      // 附加请求头
	Timeout   time.Duration          // 0表示使用协作方默认值
	RateLimit int                    // 每秒请求上限，0表示不限流
	Breaker   bool                   // 是否启用熔断器
}

// HTTPResponse HTTP协作方返回的响应
// Body为nil表示响应缺少正文字段
type HTTPResponse struct {
	Status int
	Body   []byte
}

// HTTPCaller HTTP传输协作方接口
// 实现负责连接池、超时执行与调用期间的挂起
type HTTPCaller interface {
	Call(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// TCPRequest TCP协作方的出站请求
type TCPRequest struct {
	Host      string         // 带tcp://前缀的地址
	Frame     *protocol.Frame
	Timeout   time.Duration
	RateLimit int
	Breaker   bool
}

// TCPCaller TCP传输协作方接口
// Call返回协作方已解码的对象，本层不再重复解析
type TCPCaller interface {
	Call(ctx context.Context, req *TCPRequest) (interface{}, error)
}

// hostGuard 按地址维护限流器与熔断器
// 限流与熔断属于传输协作方，核心派发逻辑不感知
type hostGuard struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

func newHostGuard() *hostGuard {
	return &hostGuard{
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// wait 按限流配置等待令牌
func (g *hostGuard) wait(ctx context.Context, host string, maxRPS int) error {
	if maxRPS <= 0 {
		return nil
	}

	g.mu.Lock()
	limiter, ok := g.limiters[host]
	if !ok || limiter.Limit() != rate.Limit(maxRPS) {
		limiter = rate.NewLimiter(rate.Limit(maxRPS), maxRPS)
		g.limiters[host] = limiter
	}
	g.mu.Unlock()

	return limiter.Wait(ctx)
}

// execute 可选地在熔断器内执行操作
func (g *hostGuard) execute(host string, withBreaker bool, op func() (interface{}, error)) (interface{}, error) {
	if !withBreaker {
		return op()
	}

	g.mu.Lock()
	breaker, ok := g.breakers[host]
	if !ok {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: host})
		g.breakers[host] = breaker
	}
	g.mu.Unlock()

	return breaker.Execute(op)
}

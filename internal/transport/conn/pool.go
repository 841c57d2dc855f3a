package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"rpclink/internal/utils"
)

// PoolStats 连接池统计信息
type PoolStats struct {
	TotalConnections  int
	ActiveConnections int
	IdleConnections   int
	WaitingRequests   int
	TotalRequests     int64
	TotalHits         int64
	TotalMisses       int64
	TotalErrors       int64
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxSize             int           // 每个地址的最大连接数
	MaxIdleTime         time.Duration // 最大空闲时间
	DialTimeout         time.Duration // 拨号超时时间
	HealthCheckInterval time.Duration // 空闲连接清理间隔
	DialRetryCount      int           // 拨号重试次数
	InitialBackoff      time.Duration // 重试初始间隔
	MaxBackoff          time.Duration // 重试最大间隔
}

// DefaultPoolConfig 默认配置
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxSize:             100,
		MaxIdleTime:         5 * time.Minute,
		DialTimeout:         30 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		DialRetryCount:      3,
		InitialBackoff:      100 * time.Millisecond,
		MaxBackoff:          5 * time.Second,
	}
}

// DialFunc 连接创建函数
type DialFunc func(ctx context.Context, addr string) (Connection, error)

// DefaultDialFunc 默认连接创建函数
func DefaultDialFunc(ctx context.Context, addr string) (Connection, error) {
	dialer := net.Dialer{Timeout: 30 * time.Second}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPConnection(netConn, utils.GenerateConnID(), 0, 0), nil
}

// Pool 连接池接口
type Pool interface {
	// Get 获取连接，池耗尽时排队等待
	Get(ctx context.Context, addr string) (Connection, error)
	// Put 归还连接
	Put(conn Connection) error
	// Close 关闭连接池
	Close() error
	// Stats 获取统计信息
	Stats() PoolStats
}

// pooledConnection 池化连接包装器
type pooledConnection struct {
	Connection
	addr     string
	lastUsed time.Time
	inUse    bool
}

// connectionPool 连接池实现
type connectionPool struct {
	config      *PoolConfig
	connections map[string][]*pooledConnection // addr -> connections
	waitQueue   map[string][]chan *pooledConnection
	mu          sync.Mutex
	stats       PoolStats
	dialFunc    DialFunc
	logger      *zap.Logger
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// NewPool 创建连接池
func NewPool(config *PoolConfig, dialFunc DialFunc, logger *zap.Logger) Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if dialFunc == nil {
		dialFunc = DefaultDialFunc
	}

	p := &connectionPool{
		config:      config,
		connections: make(map[string][]*pooledConnection),
		waitQueue:   make(map[string][]chan *pooledConnection),
		dialFunc:    dialFunc,
		logger:      utils.EnsureLogger(logger),
		closeCh:     make(chan struct{}),
	}

	p.startReaper()
	return p
}

// Get 获取连接
func (p *connectionPool) Get(ctx context.Context, addr string) (Connection, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("connection pool is closed")
	}
	p.stats.TotalRequests++

	// 查找可用的空闲连接
	for i := 0; i < len(p.connections[addr]); {
		pc := p.connections[addr][i]
		if pc.inUse {
			i++
			continue
		}
		if !pc.IsHealthy() {
			p.removeLocked(pc)
			pc.Close()
			continue
		}
		pc.inUse = true
		pc.lastUsed = time.Now()
		p.stats.TotalHits++
		p.stats.ActiveConnections++
		p.stats.IdleConnections--
		p.mu.Unlock()
		return pc, nil
	}

	// 达到上限时排队等待归还
	if len(p.connections[addr]) >= p.config.MaxSize {
		waitCh := make(chan *pooledConnection, 1)
		p.waitQueue[addr] = append(p.waitQueue[addr], waitCh)
		p.stats.WaitingRequests++
		p.mu.Unlock()

		select {
		case pc, ok := <-waitCh:
			if !ok || pc == nil {
				return nil, fmt.Errorf("connection pool is closed")
			}
			return pc, nil
		case <-ctx.Done():
			p.mu.Lock()
			p.dropWaiterLocked(addr, waitCh)
			// 取消与归还并发时连接可能已经交到通道里，必须重新上架
			select {
			case pc, ok := <-waitCh:
				if ok && pc != nil {
					p.handoffLocked(pc)
				}
			default:
			}
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	p.stats.TotalMisses++
	p.mu.Unlock()

	// 在锁外拨号，带指数退避重试
	newConn, err := p.dialWithRetry(ctx, addr)
	if err != nil {
		p.mu.Lock()
		p.stats.TotalErrors++
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	pc := &pooledConnection{
		Connection: newConn,
		addr:       addr,
		lastUsed:   time.Now(),
		inUse:      true,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		newConn.Close()
		return nil, fmt.Errorf("connection pool is closed")
	}
	p.connections[addr] = append(p.connections[addr], pc)
	p.stats.TotalConnections++
	p.stats.ActiveConnections++
	p.mu.Unlock()

	return pc, nil
}

// dialWithRetry 带指数退避的拨号
func (p *connectionPool) dialWithRetry(ctx context.Context, addr string) (Connection, error) {
	var err error
	interval := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.DialRetryCount; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		dialCtx := ctx
		if p.config.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, p.config.DialTimeout)
			defer cancel()
		}

		var conn Connection
		conn, err = p.dialFunc(dialCtx, addr)
		if err == nil {
			return conn, nil
		}

		if attempt >= p.config.DialRetryCount {
			break
		}

		p.logger.Debug("dial failed, retrying",
			zap.String("addr", addr),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			interval *= 2
			if interval > p.config.MaxBackoff {
				interval = p.config.MaxBackoff
			}
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return nil, err
}

// Put 归还连接
func (p *connectionPool) Put(conn Connection) error {
	pc, ok := conn.(*pooledConnection)
	if !ok {
		return fmt.Errorf("invalid connection type")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		pc.Close()
		return nil
	}

	if !pc.IsHealthy() {
		p.removeLocked(pc)
		pc.Close()
		return nil
	}

	p.handoffLocked(pc)
	return nil
}

// handoffLocked 上架一个在用连接：优先交给排队的等待者，否则转为空闲
// 调用方持有锁
func (p *connectionPool) handoffLocked(pc *pooledConnection) {
	if queue := p.waitQueue[pc.addr]; len(queue) > 0 {
		waitCh := queue[0]
		p.waitQueue[pc.addr] = queue[1:]
		p.stats.WaitingRequests--
		pc.lastUsed = time.Now()
		waitCh <- pc
		return
	}

	pc.inUse = false
	pc.lastUsed = time.Now()
	p.stats.ActiveConnections--
	p.stats.IdleConnections++
}

// Close 关闭连接池
func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)

	for _, conns := range p.connections {
		for _, pc := range conns {
			pc.Close()
		}
	}
	for _, queue := range p.waitQueue {
		for _, waitCh := range queue {
			close(waitCh)
		}
	}
	p.connections = nil
	p.waitQueue = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Stats 获取统计信息
func (p *connectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// startReaper 启动空闲连接清理器
func (p *connectionPool) startReaper() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.config.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.reapIdle()
			case <-p.closeCh:
				return
			}
		}
	}()
}

// reapIdle 清理超时空闲与不健康的连接
func (p *connectionPool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	now := time.Now()
	for addr, conns := range p.connections {
		kept := conns[:0]
		for _, pc := range conns {
			if pc.inUse {
				kept = append(kept, pc)
				continue
			}
			if now.Sub(pc.lastUsed) > p.config.MaxIdleTime || !pc.IsHealthy() {
				pc.Close()
				p.stats.TotalConnections--
				p.stats.IdleConnections--
				continue
			}
			kept = append(kept, pc)
		}
		if len(kept) > 0 {
			p.connections[addr] = kept
		} else {
			delete(p.connections, addr)
		}
	}
}

// removeLocked 从池中移除连接，调用方持有锁
func (p *connectionPool) removeLocked(pc *pooledConnection) {
	conns := p.connections[pc.addr]
	for i, c := range conns {
		if c == pc {
			p.connections[pc.addr] = append(conns[:i], conns[i+1:]...)
			p.stats.TotalConnections--
			if pc.inUse {
				p.stats.ActiveConnections--
			} else {
				p.stats.IdleConnections--
			}
			break
		}
	}
	if len(p.connections[pc.addr]) == 0 {
		delete(p.connections, pc.addr)
	}
}

// dropWaiterLocked 从等待队列中移除等待者，调用方持有锁
func (p *connectionPool) dropWaiterLocked(addr string, ch chan *pooledConnection) {
	queue := p.waitQueue[addr]
	for i, waitCh := range queue {
		if waitCh == ch {
			p.waitQueue[addr] = append(queue[:i], queue[i+1:]...)
			p.stats.WaitingRequests--
			break
		}
	}
	if len(p.waitQueue[addr]) == 0 {
		delete(p.waitQueue, addr)
	}
}

package conn

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// MaxFrameSize 单帧最大长度 (10MB)
const MaxFrameSize = 10 * 1024 * 1024

// Connection 连接接口
type Connection interface {
	// Send 发送一帧数据
	Send(ctx context.Context, data []byte) error
	// Receive 接收一帧数据
	Receive(ctx context.Context) ([]byte, error)
	// Close 关闭连接
	Close() error
	// IsHealthy 检查连接健康状态
	IsHealthy() bool
	// RemoteAddr 获取远程地址
	RemoteAddr() string
	// ID 获取连接ID
	ID() string
}

// TCPConnection TCP连接实现，帧格式为4字节大端长度前缀加正文
type TCPConnection struct {
	id           string
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	lastActivity time.Time
	mu           sync.Mutex
	closed       bool
}

// NewTCPConnection 创建TCP连接
// readTimeout/writeTimeout为0时只受ctx截止时间约束
func NewTCPConnection(conn net.Conn, id string, readTimeout, writeTimeout time.Duration) *TCPConnection {
	return &TCPConnection{
		id:           id,
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		lastActivity: time.Now(),
	}
}

// Send 发送一帧数据
func (c *TCPConnection) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection %s is closed", c.id)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}

	if err := c.conn.SetWriteDeadline(c.deadline(ctx, c.writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(data)))
	if _, err := c.conn.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// Receive 接收一帧数据
func (c *TCPConnection) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("connection %s is closed", c.id)
	}

	if err := c.conn.SetReadDeadline(c.deadline(ctx, c.readTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, lengthBuf); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}

	c.lastActivity = time.Now()
	return data, nil
}

// deadline 取ctx截止时间与连接超时中较早者
func (c *TCPConnection) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// Close 关闭连接
func (c *TCPConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// IsHealthy 检查连接健康状态
func (c *TCPConnection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// RemoteAddr 获取远程地址
func (c *TCPConnection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// ID 获取连接ID
func (c *TCPConnection) ID() string {
	return c.id
}

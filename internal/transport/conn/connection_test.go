package conn_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpclink/internal/transport/conn"
)

// pipePair 用内存管道构建两端帧连接
func pipePair() (*conn.TCPConnection, *conn.TCPConnection) {
	c1, c2 := net.Pipe()
	return conn.NewTCPConnection(c1, "client", 0, 0),
		conn.NewTCPConnection(c2, "server", 0, 0)
}

// 测试帧收发往返
func TestTCPConnectionRoundTrip(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	payload := []byte(`{"path":"/","data":{"method":"getByUid"}}`)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(context.Background(), payload)
	}()

	got, err := server.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-errCh)
}

// 测试多帧顺序收发互不粘连
func TestTCPConnectionMultipleFrames(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	frames := [][]byte{
		[]byte("first"),
		[]byte(""),
		[]byte("third frame with more bytes"),
	}

	go func() {
		for _, f := range frames {
			if err := client.Send(context.Background(), f); err != nil {
				return
			}
		}
	}()

	for _, want := range frames {
		got, err := server.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

// 测试超限帧在发送端被拒绝
func TestTCPConnectionFrameTooLarge(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	err := client.Send(context.Background(), make([]byte, conn.MaxFrameSize+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame too large")
}

// 测试关闭后的连接拒绝收发且不再健康
func TestTCPConnectionClosed(t *testing.T) {
	client, server := pipePair()
	defer server.Close()

	require.NoError(t, client.Close())
	assert.False(t, client.IsHealthy())

	err := client.Send(context.Background(), []byte("x"))
	assert.Error(t, err)

	_, err = client.Receive(context.Background())
	assert.Error(t, err)

	// 重复关闭幂等
	assert.NoError(t, client.Close())
}

// 测试上下文截止时间约束接收
func TestTCPConnectionReceiveDeadline(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := server.Receive(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

// 测试连接ID原样返回
func TestTCPConnectionID(t *testing.T) {
	client, server := pipePair()
	defer client.Close()
	defer server.Close()

	assert.Equal(t, "client", client.ID())
	assert.Equal(t, "server", server.ID())
}

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpclink/internal/config"
	"rpclink/internal/types"
)

// 测试默认配置
func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 100, cfg.Transport.MaxConnections)
	assert.Equal(t, config.Duration(5*time.Minute), cfg.Transport.MaxIdleTime)
	assert.Equal(t, config.Duration(30*time.Second), cfg.Transport.HealthCheckInterval)
	assert.Equal(t, 3, cfg.Transport.DialRetryCount)
	assert.Equal(t, config.Duration(100*time.Millisecond), cfg.Transport.InitialBackoff)
	assert.Equal(t, config.Duration(5*time.Second), cfg.Transport.MaxBackoff)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Log.Output)

	assert.NotNil(t, cfg.Services)
	assert.Empty(t, cfg.Services)
}

// 测试配置验证
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "有效配置",
			modify:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name: "无效最大连接数",
			modify: func(c *config.Config) {
				c.Transport.MaxConnections = 0
			},
			wantErr: true,
			errMsg:  "transport max connections must be positive",
		},
		{
			name: "无效重试次数",
			modify: func(c *config.Config) {
				c.Transport.DialRetryCount = -1
			},
			wantErr: true,
			errMsg:  "transport dial retry count cannot be negative",
		},
		{
			name: "无效日志级别",
			modify: func(c *config.Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
			errMsg:  "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// 辅助函数：构建指针值
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

// 测试版本层覆盖根层
func TestResolveVersionOverridesRoot(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"user": {
			Host:    "http://svc:80",
			Timeout: intPtr(500),
		},
		"user.v": {
			Timeout: intPtr(1000),
		},
	}

	r, err := config.Resolve(services, "user.v")
	require.NoError(t, err)

	assert.Equal(t, 1000, r.TimeoutMillis)
	assert.Equal(t, "http://svc:80", r.Host)
	assert.Equal(t, "http", r.Scheme)
	assert.Equal(t, "user", r.Root)
	assert.Equal(t, "user.v", r.Service)
}

// 测试三个字段各自独立回退
func TestResolveIndependentFallback(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"user": {
			Host:    "http://svc:80",
			Timeout: intPtr(500),
			Secret:  strPtr("root-secret"),
			UseRPC:  boolPtr(true),
		},
		"user.1": {
			// 只覆盖timeout，secret与useRpc回退到根层
			Timeout: intPtr(1000),
		},
	}

	r, err := config.Resolve(services, "user.1")
	require.NoError(t, err)

	assert.Equal(t, 1000, r.TimeoutMillis)
	assert.Equal(t, "root-secret", r.Secret)
	assert.True(t, r.UseRPC)
}

// 测试内置默认值
func TestResolveDefaults(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"user": {Host: "http://svc:80"},
	}

	r, err := config.Resolve(services, "user")
	require.NoError(t, err)

	assert.False(t, r.UseRPC)
	assert.Equal(t, 0, r.TimeoutMillis)
	assert.Equal(t, "", r.Secret)
	assert.Equal(t, "POST", r.Verb)
	assert.Equal(t, "/", r.URLPath)
}

// 测试host只从根层读取，版本层的host覆盖不生效
func TestResolveHostRootOnly(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"user": {
			Host: "http://root:80",
		},
		"user.1": {
			Host: "http://version:80",
		},
	}

	r, err := config.Resolve(services, "user.1")
	require.NoError(t, err)
	assert.Equal(t, "http://root:80", r.Host)
}

// 测试urlPath与verb只读版本层条目
func TestResolvePathAndVerbVersionOnly(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"user": {
			Host:    "http://svc:80",
			URLPath: "/root-path",
			Verb:    "GET",
		},
		"user.1": {},
	}

	// 版本层条目未设置时直接使用默认值，不回退到根层
	r, err := config.Resolve(services, "user.1")
	require.NoError(t, err)
	assert.Equal(t, "/", r.URLPath)
	assert.Equal(t, "POST", r.Verb)

	// 无版本的名称时根层条目本身就是版本层条目
	r, err = config.Resolve(services, "user")
	require.NoError(t, err)
	assert.Equal(t, "/root-path", r.URLPath)
	assert.Equal(t, "GET", r.Verb)
}

// 测试缺失host时解析失败
func TestResolveMissingHost(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"user":   {Secret: strPtr("k")},
		"user.1": {Host: "http://version-only:80"},
	}

	_, err := config.Resolve(services, "user.1")
	require.Error(t, err)

	var configErr *types.ConfigError
	require.True(t, errors.As(err, &configErr))
	assert.True(t, errors.Is(err, types.ErrMissingHost))
}

// 测试空服务名称
func TestResolveEmptyName(t *testing.T) {
	_, err := config.Resolve(map[string]config.ServiceConfig{}, "")
	require.Error(t, err)

	var configErr *types.ConfigError
	assert.True(t, errors.As(err, &configErr))
	assert.True(t, errors.Is(err, types.ErrEmptyServiceName))
}

// 测试未配置的服务
func TestResolveUnknownService(t *testing.T) {
	_, err := config.Resolve(map[string]config.ServiceConfig{}, "ghost")
	require.Error(t, err)

	var configErr *types.ConfigError
	assert.True(t, errors.As(err, &configErr))
}

// 测试scheme校验
func TestResolveScheme(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		wantErr bool
		scheme  string
	}{
		{"http地址", "http://svc:80", false, "http"},
		{"https地址", "https://svc:443", false, "https"},
		{"不支持的scheme", "ftp://svc:21", true, ""},
		{"缺少scheme", "svc", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			services := map[string]config.ServiceConfig{
				"svc": {Host: tt.host},
			}
			r, err := config.Resolve(services, "svc")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidScheme))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.scheme, r.Scheme)
			}
		})
	}
}

// 测试非结构化模式不能走TCP
func TestResolveTCPRequiresRPC(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"svc": {Host: "tcp://10.0.0.1:4000"},
	}

	_, err := config.Resolve(services, "svc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTCPRequiresRPC))

	// 开启useRpc后解析成功
	services["svc"] = config.ServiceConfig{
		Host:   "tcp://10.0.0.1:4000",
		UseRPC: boolPtr(true),
	}
	r, err := config.Resolve(services, "svc")
	require.NoError(t, err)
	assert.Equal(t, "tcp", r.Scheme)
	assert.True(t, r.UseRPC)
}

// 测试负超时被拒绝
func TestResolveNegativeTimeout(t *testing.T) {
	services := map[string]config.ServiceConfig{
		"svc": {Host: "http://svc:80", Timeout: intPtr(-1)},
	}

	_, err := config.Resolve(services, "svc")
	require.Error(t, err)

	var configErr *types.ConfigError
	assert.True(t, errors.As(err, &configErr))
}

// 测试从YAML文件加载配置
func TestFileProviderLoad(t *testing.T) {
	content := `
transport:
  max_connections: 50
  max_idle_time: 1m
services:
  user:
    host: http://svc:80
    timeout: 500
    secret: k
  user.1:
    timeout: 1000
    useRpc: true
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	provider := config.NewFileProvider(nil)
	require.NoError(t, provider.Load(path))
	defer provider.Close()

	cfg := provider.Get()
	assert.Equal(t, 50, cfg.Transport.MaxConnections)
	assert.Equal(t, config.Duration(time.Minute), cfg.Transport.MaxIdleTime)
	assert.Equal(t, "debug", cfg.Log.Level)

	r, err := config.Resolve(cfg.Services, "user.1")
	require.NoError(t, err)
	assert.Equal(t, 1000, r.TimeoutMillis)
	assert.Equal(t, "k", r.Secret)
	assert.True(t, r.UseRPC)
}

// 测试加载不存在的文件
func TestFileProviderLoadMissing(t *testing.T) {
	provider := config.NewFileProvider(nil)
	err := provider.Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfigFileNotFound))
}

// 测试内存提供者的变更通知
func TestStaticProviderWatch(t *testing.T) {
	provider := config.NewStaticProvider(nil)

	var got *config.Config
	provider.Watch(func(c *config.Config) { got = c })

	next := config.DefaultConfig()
	next.Services["user"] = config.ServiceConfig{Host: "http://svc:80"}
	provider.Set(next)

	require.NotNil(t, got)
	assert.Equal(t, next, got)
	assert.Equal(t, next, provider.Get())
}

package config

import (
	"encoding/json"
	"fmt"
	"time"

	"rpclink/internal/utils"
)

// Duration 自定义Duration类型，支持JSON/YAML序列化
type Duration time.Duration

// UnmarshalJSON 实现JSON反序列化
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON 实现JSON序列化
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML 实现YAML反序列化
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML 实现YAML序列化
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ServiceConfig 单个服务条目的原始配置（根层或版本层）
// Timeout/Secret/UseRPC 使用指针以区分"未设置"与零值，
// 三者各自独立地从版本层回退到根层再回退到默认值
type ServiceConfig struct {
	Host    string  `yaml:"host" json:"host"`
	Timeout *int    `yaml:"timeout" json:"timeout"` // 毫秒
	Secret  *string `yaml:"secret" json:"secret"`
	UseRPC  *bool   `yaml:"useRpc" json:"useRpc"`
	URLPath string  `yaml:"urlPath" json:"urlPath"`
	Verb    string  `yaml:"verb" json:"verb"`
	MaxRPS  int     `yaml:"maxRps" json:"maxRps"`   // 每秒请求上限，0表示不限流
	Breaker bool    `yaml:"breaker" json:"breaker"` // 是否启用熔断器
}

// TransportConfig 传输层配置（连接池与拨号重试）
type TransportConfig struct {
	MaxConnections      int      `yaml:"max_connections" json:"max_connections"`
	MaxIdleTime         Duration `yaml:"max_idle_time" json:"max_idle_time"`
	HealthCheckInterval Duration `yaml:"health_check_interval" json:"health_check_interval"`
	DialRetryCount      int      `yaml:"dial_retry_count" json:"dial_retry_count"`
	InitialBackoff      Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff          Duration `yaml:"max_backoff" json:"max_backoff"`
}

// Config 主配置结构
type Config struct {
	Transport TransportConfig          `yaml:"transport" json:"transport"`
	Services  map[string]ServiceConfig `yaml:"services" json:"services"`
	Log       utils.LogConfig          `yaml:"log" json:"log"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			MaxConnections:      100,
			MaxIdleTime:         Duration(5 * time.Minute),
			HealthCheckInterval: Duration(30 * time.Second),
			DialRetryCount:      3,
			InitialBackoff:      Duration(100 * time.Millisecond),
			MaxBackoff:          Duration(5 * time.Second),
		},
		Services: make(map[string]ServiceConfig),
		Log:      utils.DefaultLogConfig(),
	}
}

// Validate 验证全局配置块
// 服务条目不在此验证：条目错误在端点解析时报告，
// 避免一个坏条目阻塞整个配置加载
func (c *Config) Validate() error {
	if c.Transport.MaxConnections <= 0 {
		return fmt.Errorf("transport max connections must be positive")
	}
	if c.Transport.DialRetryCount < 0 {
		return fmt.Errorf("transport dial retry count cannot be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	// KindConfig 配置解析错误（端点解析阶段，网络调用之前）
	KindConfig ErrorKind = "CONFIG"
	// KindInvocation 调用入口校验错误（派发之前）
	KindInvocation ErrorKind = "INVOCATION"
	// KindTransport 传输错误（连接、超时、响应缺少正文）
	KindTransport ErrorKind = "TRANSPORT"
	// KindDecode 解码错误（正文存在但无法解析）
	KindDecode ErrorKind = "DECODE"
)

// 定义包级别的错误
var (
	ErrMissingHost      = errors.New("service host is missing or empty")
	ErrInvalidScheme    = errors.New("service host scheme must be http, https or tcp")
	ErrTCPRequiresRPC   = errors.New("tcp transport requires rpc envelope mode")
	ErrNilContext       = errors.New("first argument must be a non-nil context")
	ErrMissingBody      = errors.New("response is missing body field")
	ErrLegacyArgs       = errors.New("legacy mode requires a single map[string]any argument")
	ErrEmptyServiceName = errors.New("service name cannot be empty")
	ErrEmptyMethodName  = errors.New("method name cannot be empty")
)

// ConfigError 配置错误，端点解析失败时返回
type ConfigError struct {
	Service string // 服务名称
	Cause   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: service %q: %v", e.Service, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Kind 返回错误分类
func (e *ConfigError) Kind() ErrorKind { return KindConfig }

// NewConfigError 创建配置错误
func NewConfigError(service string, cause error) *ConfigError {
	return &ConfigError{Service: service, Cause: cause}
}

// InvocationError 调用错误，入口参数校验失败时返回
type InvocationError struct {
	Method string // 远程方法名称
	Cause  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %q: %v", e.Method, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// Kind 返回错误分类
func (e *InvocationError) Kind() ErrorKind { return KindInvocation }

// NewInvocationError 创建调用错误
func NewInvocationError(method string, cause error) *InvocationError {
	return &InvocationError{Method: method, Cause: cause}
}

// TransportError 传输错误，I/O 阶段失败时返回
type TransportError struct {
	Service string // 服务名称
	Method  string // 远程方法名称
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s.%s: %v", e.Service, e.Method, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Kind 返回错误分类
func (e *TransportError) Kind() ErrorKind { return KindTransport }

// NewTransportError 创建传输错误
func NewTransportError(service, method string, cause error) *TransportError {
	return &TransportError{Service: service, Method: method, Cause: cause}
}

// DecodeError 解码错误，携带可读原因与原始正文便于排查
type DecodeError struct {
	Reason string // 可读的失败原因
	Raw    string // 原始响应正文
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s: %v (raw: %s)", e.Reason, e.Cause, e.Raw)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Kind 返回错误分类
func (e *DecodeError) Kind() ErrorKind { return KindDecode }

// NewDecodeError 创建解码错误，原因由底层解析错误归类
func NewDecodeError(raw string, cause error) *DecodeError {
	return &DecodeError{Reason: decodeReason(cause), Raw: raw, Cause: cause}
}

// decodeReason 将 encoding/json 的错误归类为可读原因
func decodeReason(err error) string {
	if err == nil {
		return "unknown"
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		msg := syntaxErr.Error()
		if strings.Contains(msg, "invalid character") && containsControl(msg) {
			return "control character"
		}
		return "syntax error"
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return "state mismatch"
	}

	if strings.Contains(err.Error(), "invalid UTF-8") {
		return "malformed encoding"
	}

	return "unknown"
}

// containsControl 检查错误消息是否描述控制字符
func containsControl(msg string) bool {
	return strings.Contains(msg, `'\x`) || strings.Contains(msg, `'\u00`)
}

// KindOf 获取错误分类，未分类的错误返回空字符串
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

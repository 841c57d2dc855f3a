package utils

import (
	"github.com/google/uuid"
)

// GenerateCallID 生成调用关联ID，用于日志追踪
func GenerateCallID() string {
	return uuid.NewString()
}

// GenerateConnID 生成连接ID
func GenerateConnID() string {
	return "conn-" + uuid.NewString()
}

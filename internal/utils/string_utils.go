package utils

import (
	"fmt"
	"regexp"
	"strings"

	"rpclink/internal/types"
)

// 预编译的正则表达式
var serviceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateServiceName 验证服务名称
func ValidateServiceName(name string) error {
	if name == "" {
		return types.ErrEmptyServiceName
	}
	if len(name) > 255 {
		return fmt.Errorf("service name too long (max 255 characters)")
	}
	if !serviceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid service name: must contain only letters, numbers, dots, underscores, and hyphens")
	}
	return nil
}

// SplitServiceName 拆分服务名称为根名称与版本
// "user.1" -> ("user", "1")，无版本时版本为空字符串
func SplitServiceName(name string) (root, version string) {
	idx := strings.Index(name, ".")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

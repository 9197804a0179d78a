// Package utils 通用小工具，不依赖 internal
package utils

import "time"

// CoalesceString 返回第一个非空字符串
func CoalesceString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// DefaultInt 若 v 非正则返回 defaultVal
func DefaultInt(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// DefaultDuration 若 d 非正则返回 defaultVal
func DefaultDuration(d, defaultVal time.Duration) time.Duration {
	if d <= 0 {
		return defaultVal
	}
	return d
}

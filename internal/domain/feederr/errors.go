// Package feederr 行情源错误分类
package feederr

import (
	"errors"
	"fmt"
)

var (
	// ErrSymbolNotFound 代码无法解析
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrAuthFailure 推送通道鉴权被拒绝
	ErrAuthFailure = errors.New("auth failure")
	// ErrUnsupported 当前行情源不支持该品种或周期
	ErrUnsupported = errors.New("unsupported")
)

// NetworkError 请求或 socket 失败，可重试
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError 上游返回了结构化错误
type UpstreamError struct {
	Provider string
	Status   int
	Code     string
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s api error: %d %s: %s", e.Provider, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s api error: %d %s", e.Provider, e.Status, e.Message)
}

// IsRetryable 仅网络错误以及上游 5xx / 429 可重试
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status >= 500 || ue.Status == 429
	}
	return false
}

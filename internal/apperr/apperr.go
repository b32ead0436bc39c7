// Package apperr 定义会话编排核心的错误分类
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind 错误类型
type Kind string

const (
	// NotFound 会话、用户或游戏不存在
	NotFound Kind = "NOT_FOUND"
	// AlreadyActive 房主已经拥有进行中的会话
	AlreadyActive Kind = "ALREADY_ACTIVE"
	// NotActive 会话不处于可操作状态
	NotActive Kind = "NOT_ACTIVE"
	// Full 玩家席位已满
	Full Kind = "FULL"
	// Forbidden 非房主执行房主操作
	Forbidden Kind = "FORBIDDEN"
	// AlreadyPresent 重复加入
	AlreadyPresent Kind = "ALREADY_PRESENT"
	// Conflict 唯一约束冲突且重试耗尽
	Conflict Kind = "CONFLICT"
	// Transient 存储或缓存暂不可用，可重试
	Transient Kind = "TRANSIENT"
	// Invalid 输入格式错误
	Invalid Kind = "INVALID"
	// Unauthorized 凭证缺失或无效
	Unauthorized Kind = "UNAUTHORIZED"
	// RateLimited 请求过于频繁
	RateLimited Kind = "RATE_LIMITED"
	// Internal 未分类的内部错误
	Internal Kind = "INTERNAL"
)

// Error 带分类的领域错误
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误类型比较
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New 创建领域错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WrapStore 将存储层的未知错误包装为 Transient；已分类的错误原样返回
func WrapStore(message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(Transient, message, err)
}

// KindOf 返回错误类型，context 超时或取消视为 Transient
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient
	}
	return Internal
}

// IsKind 判断错误是否属于指定类型
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 返回错误类型对应的HTTP状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case AlreadyActive, NotActive, Full, AlreadyPresent, Conflict:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case Invalid:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别，决定HTTP状态码与错误代码
type Kind string

const (
	Unauthenticated     Kind = "UNAUTHENTICATED"
	Forbidden           Kind = "FORBIDDEN"
	Suspended           Kind = "SUSPENDED"
	NotFound            Kind = "NOT_FOUND"
	InvalidInput        Kind = "INVALID_INPUT"
	PayloadTooLarge     Kind = "PAYLOAD_TOO_LARGE"
	NameTaken           Kind = "NAME_TAKEN"
	QuotaExceeded       Kind = "QUOTA_EXCEEDED"
	Protected           Kind = "PROTECTED"
	RateLimited         Kind = "RATE_LIMITED"
	UnsupportedLanguage Kind = "UNSUPPORTED_LANGUAGE"
	ExecutionFailed     Kind = "EXECUTION_FAILED"
	UpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	DatabaseUnavailable Kind = "DATABASE_UNAVAILABLE"
	Maintenance         Kind = "MAINTENANCE"
	Internal            Kind = "INTERNAL"
)

// Error 应用错误，Message 面向用户，Err 仅用于日志
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New 创建应用错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf 创建带格式化消息的应用错误
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As 提取应用错误
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf 返回错误类别；非应用错误一律视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return Internal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 错误类别到HTTP状态码的映射
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, PayloadTooLarge, UnsupportedLanguage:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden, Suspended, QuotaExceeded, Protected:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case NameTaken:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case ExecutionFailed, UpstreamUnavailable:
		return http.StatusBadGateway
	case DatabaseUnavailable, Maintenance:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

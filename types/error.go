package types

import (
	"errors"
	"fmt"
)

// ErrorCode 引擎统一错误码
type ErrorCode string

// 存储错误码
const (
	ErrCapacityExceeded  ErrorCode = "CAPACITY_EXCEEDED"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrStoreClosed       ErrorCode = "STORE_CLOSED"
	ErrStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrSerialization     ErrorCode = "SERIALIZATION"
	ErrConcurrentUpdate  ErrorCode = "CONCURRENT_UPDATE"
	ErrUnsupportedDriver ErrorCode = "UNSUPPORTED_DRIVER"
)

// 上下文错误码
const (
	ErrContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
	ErrTokenizerError  ErrorCode = "TOKENIZER_ERROR"
)

// Error 带错误码与会话信息的结构化错误
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层原因
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建结构化错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 附加底层原因
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSession 标注相关会话
func (e *Error) WithSession(sid string) *Error {
	e.SessionID = sid
	return e
}

// WithRetryable 标记是否可重试
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode 从错误链中取出错误码
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode 错误链中是否有错误携带 code
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

// WrapError 把 err 包装为结构化错误，已经是则原样返回
func WrapError(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(code, message).WithCause(err)
}

package application

import (
	"errors"
	"net/http"
)

// 投递流水线各阶段的哨兵错误
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidSalary  = errors.New("invalid expected salary")
	ErrBadJobRef      = errors.New("invalid job reference")
	ErrJobNotFound    = errors.New("job not found or inactive")
	ErrJobExpired     = errors.New("job past application deadline")
	ErrAlreadyApplied = errors.New("already applied")
	ErrCreateDir      = errors.New("create upload directory failed")
	ErrSaveResume     = errors.New("save resume file failed")
	ErrInsertFailed   = errors.New("insert application failed")
)

// Kind 错误类别，决定HTTP状态码
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
)

// SubmitError 带外显文案的投递错误
// Message 是直接返回给候选人的文案，Base 是触发它的哨兵错误
type SubmitError struct {
	Kind    Kind
	Message string
	Base    error
}

func (e *SubmitError) Error() string {
	return e.Message
}

func (e *SubmitError) Unwrap() error {
	return e.Base
}

func (e *SubmitError) Is(target error) bool {
	return errors.Is(e.Base, target)
}

// newSubmitError 创建投递错误
func newSubmitError(kind Kind, message string, base error) *SubmitError {
	return &SubmitError{Kind: kind, Message: message, Base: base}
}

// HTTPStatus 将投递错误映射到HTTP状态码
// 未分类的错误一律视为服务端错误
func HTTPStatus(err error) int {
	var se *SubmitError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage 提取面向候选人的错误文案
func UserMessage(err error) string {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Message
	}
	return "Failed to submit application"
}

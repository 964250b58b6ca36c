package errors

import (
	"errors"
	"strings"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// Kind 业务错误分类
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	// KindDirection 完成记录的双方与账本户对不匹配，属于数据完整性问题
	KindDirection Kind = "direction_resolution"
)

// Error 结构化业务错误
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// WithField 复制错误并附加字段名（不修改哨兵值）
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// Is 按 Kind+Code 比较，使 WithField 派生出的错误仍能与哨兵匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newError(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation 字段缺失或非法
func Validation(code int, msg string) *Error { return newError(KindValidation, code, msg) }

// Authorization 操作人无权执行
func Authorization(code int, msg string) *Error { return newError(KindAuthorization, code, msg) }

// StateConflict 非法状态流转、重复排班等
func StateConflict(code int, msg string) *Error { return newError(KindStateConflict, code, msg) }

// NotFound 记录不存在
func NotFound(code int, msg string) *Error { return newError(KindNotFound, code, msg) }

// Direction 方向解析失败
func Direction(code int, msg string) *Error { return newError(KindDirection, code, msg) }

// List 多个业务错误（如多字段校验失败）
type List []*Error

func (l List) Error() string {
	msgs := make([]string, 0, len(l))
	for _, e := range l {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is 任一元素匹配即视为匹配
func (l List) Is(target error) bool {
	for _, e := range l {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

// Err 空列表返回 nil，避免 typed-nil 陷阱
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// KindOf 提取错误分类；非业务错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var l List
	if errors.As(err, &l) && len(l) > 0 {
		return l[0].Kind
	}
	return ""
}

// Flatten 将 error 展开为业务错误列表；非业务错误返回 nil
func Flatten(err error) List {
	var l List
	if errors.As(err, &l) {
		return l
	}
	var e *Error
	if errors.As(err, &e) {
		return List{e}
	}
	return nil
}

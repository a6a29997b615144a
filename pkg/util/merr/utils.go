// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case saveError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// CodeName 返回错误码对应的简短名称，主要用于指标标签。
func CodeName(err error) string {
	if err == nil {
		return "ok"
	}
	cause := errors.Cause(err)
	if se, ok := cause.(saveError); ok {
		// 截掉 wrapFields 追加的上下文，只保留叶子错误的描述。
		name, _, _ := strings.Cut(se.msg, "[")
		name, _, _ = strings.Cut(name, ":")
		return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	}
	if IsCanceledOrTimeout(err) {
		return "canceled"
	}
	return "unexpected"
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(saveError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(saveError); ok {
		return merr.errType
	}

	return SystemError
}

// Position 描述对象流中的位置，行列均从 1 开始。
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IO 相关错误封装。
func WrapErrIoKeyNotFound(key string, msg ...string) error {
	err := wrapFields(ErrIoKeyNotFound, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrIoUnexpectEOF(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoUnexpectEOF, err.Error(), value("key", key))
}

// 参数相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 对象流语法相关错误封装。
//
// what 描述截断时正在读取的内容，例如 "object body"、"list"。
func WrapErrStreamTruncated(what string, pos Position, enclosing string) error {
	return wrapFields(ErrStreamTruncated,
		value("reading", what),
		value("pos", pos),
		value("in", enclosing),
	)
}

func WrapErrSyntax(expected, found string, pos Position, enclosing string) error {
	return wrapFields(ErrSyntax,
		value("expected", expected),
		value("found", found),
		value("pos", pos),
		value("in", enclosing),
	)
}

// 类型与字段相关错误封装。
func WrapErrUnknownType(typeName string, msg ...string) error {
	err := wrapFields(ErrUnknownType, value("type", typeName))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFieldNotFound[T any](field T, msg ...string) error {
	err := wrapFields(ErrFieldNotFound, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUnexpectedFieldOrder(expected, found string, msg ...string) error {
	err := wrapFields(ErrUnexpectedFieldOrder,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDuplicateType(tag string, msg ...string) error {
	err := wrapFields(ErrDuplicateType, value("tag", tag))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFieldNameInvalid(field any, msg ...string) error {
	err := wrapFields(ErrFieldInvalidName, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 值相关错误封装。
func WrapErrUnsupportedValue(typeName string, msg ...string) error {
	err := wrapFields(ErrUnsupportedValue, value("type", typeName))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrArityMismatch(expected, actual int, msg ...string) error {
	err := wrapFields(ErrArityMismatch,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrArityOutOfRange(actual, lower, upper int, msg ...string) error {
	err := wrapFields(ErrArityMismatch, bound("arity", actual, lower, upper))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTypeMismatch(expected, actual string, msg ...string) error {
	err := wrapFields(ErrTypeMismatch,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 会话相关错误封装。
func WrapErrSessionBroken(sessionID string, cause error) error {
	desc := "previous failure"
	if cause != nil {
		desc = cause.Error()
	}
	return wrapFieldsWithDesc(ErrSessionBroken, desc, value("session", sessionID))
}

// 存档相关错误封装。
func WrapErrSaveNotFound(name string, msg ...string) error {
	err := wrapFields(ErrSaveNotFound, value("save", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSaveCorrupted(name string, cause error) error {
	desc := "unknown cause"
	if cause != nil {
		desc = cause.Error()
	}
	return wrapFieldsWithDesc(ErrSaveCorrupted, desc, value("save", name))
}

// MarkSaveCorrupted 将 cause 标记为存档损坏，errors.Is 同时匹配两者，Code 仍取 cause 的错误码。
func MarkSaveCorrupted(name string, cause error) error {
	if cause == nil {
		return nil
	}
	return Combine(wrapFields(ErrSaveCorrupted, value("save", name)), cause)
}

func WrapErrSaveVersionMismatch(expected, actual string, msg ...string) error {
	err := wrapFields(ErrSaveVersionMismatch,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSaveAlreadyExists(name string, msg ...string) error {
	err := wrapFields(ErrSaveAlreadyExists, value("save", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOperationNotSupported(op string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", op))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err saveError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err saveError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name:  name,
		value: value,
		lower: lower,
		upper: upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}

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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// 叶子错误统一在这里定义。
// WARN: 新增错误前先确认下面已有的错误是否可以复用。
// 命名规则：Err + 相关前缀 + 错误名。
var (
	// IO 相关
	ErrIoKeyNotFound = newSaveError("key not found", 1000, false)
	ErrIoFailed      = newSaveError("IO failed", 1001, true)
	ErrIoUnexpectEOF = newSaveError("unexpected EOF", 1002, false)

	// 参数相关
	ErrParameterInvalid = newSaveError("invalid parameter", 1100, false)
	ErrParameterMissing = newSaveError("missing parameter", 1101, false)

	// 对象流语法相关：输入流被截断、出现非法字符等。
	ErrStreamTruncated = newSaveError("stream truncated", 4000, false, WithErrorType(InputError))
	ErrSyntax          = newSaveError("syntax error", 4001, false, WithErrorType(InputError))

	// 类型与字段相关
	ErrUnknownType          = newSaveError("unknown type", 4100, false, WithErrorType(InputError))
	ErrFieldNotFound        = newSaveError("field not found", 4101, false, WithErrorType(InputError))
	ErrUnexpectedFieldOrder = newSaveError("unexpected field order", 4102, false, WithErrorType(InputError))
	ErrDuplicateType        = newSaveError("duplicate type registration", 4103, false)
	ErrFieldInvalidName     = newSaveError("field name invalid", 4104, false)

	// 值相关
	ErrUnsupportedValue = newSaveError("unsupported value", 4200, false)
	ErrArityMismatch    = newSaveError("arity mismatch", 4201, false, WithErrorType(InputError))
	ErrTypeMismatch     = newSaveError("type mismatch", 4202, false, WithErrorType(InputError))

	// 会话相关
	ErrSessionBroken = newSaveError("session broken, reset required", 4300, false)

	// 存档相关
	ErrSaveNotFound        = newSaveError("save not found", 4400, false)
	ErrSaveCorrupted       = newSaveError("save corrupted", 4401, false)
	ErrSaveVersionMismatch = newSaveError("save format version mismatch", 4402, false)
	ErrSaveAlreadyExists   = newSaveError("save already exists", 4403, false)

	// General
	ErrOperationNotSupported = newSaveError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to saveError
	errUnexpected = newSaveError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*saveError)

func WithDetail(detail string) errorOption {
	return func(err *saveError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *saveError) {
		err.errType = etype
	}
}

type saveError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newSaveError(msg string, code int32, retriable bool, options ...errorOption) saveError {
	err := saveError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e saveError) code() int32 {
	return e.errCode
}

func (e saveError) Error() string {
	return e.msg
}

func (e saveError) Detail() string {
	return e.detail
}

func (e saveError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(saveError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多错误的 cause 定义为最后一个错误
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

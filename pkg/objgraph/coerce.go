package objgraph

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

// assignScalar 将 null、布尔、数字或字符串值写入 target。
func assignScalar(v Value, target reflect.Value) error {
	t := target.Type()
	switch v.Kind {
	case KindNull:
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice:
			target.SetZero()
			return nil
		}
	case KindBool:
		switch t.Kind() {
		case reflect.Bool:
			target.SetBool(v.Bool)
			return nil
		case reflect.Interface:
			return setNatural(target, v.Bool)
		}
	case KindNumber:
		return assignNumber(v.Text, target)
	case KindString:
		switch t.Kind() {
		case reflect.String:
			target.SetString(v.Text)
			return nil
		case reflect.Interface:
			return setNatural(target, v.Text)
		}
	}
	return merr.WrapErrTypeMismatch(t.String(), v.Kind.String())
}

func assignNumber(text string, target reflect.Value) error {
	t := target.Type()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, t.Bits())
		if err != nil {
			return numberError(t, text, err)
		}
		target.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(text, 10, t.Bits())
		if err != nil {
			return numberError(t, text, err)
		}
		target.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(text, t.Bits())
		if err != nil {
			return numberError(t, text, err)
		}
		target.SetFloat(f)
	case reflect.Interface:
		n, err := naturalNumber(text)
		if err != nil {
			return numberError(t, text, err)
		}
		return setNatural(target, n)
	default:
		return merr.WrapErrTypeMismatch(t.String(), "number "+text)
	}
	return nil
}

func numberError(t reflect.Type, text string, err error) error {
	if errors.Is(err, strconv.ErrRange) {
		return merr.WrapErrUnsupportedValue(t.String(), text+" is out of range")
	}
	return merr.WrapErrTypeMismatch(t.String(), "number "+text)
}

// naturalNumber 决定无类型目标拿到的 Go 类型：整数字面量且不溢出时为 int，带小数部分时为 float64。
func naturalNumber(text string) (any, error) {
	if !strings.ContainsRune(text, '.') {
		if n, err := strconv.ParseInt(text, 10, 0); err == nil {
			return int(n), nil
		}
		if n, err := strconv.ParseUint(text, 10, 64); err == nil {
			return n, nil
		}
	}
	return strconv.ParseFloat(text, 64)
}

func setNatural(target reflect.Value, x any) error {
	if x == nil {
		target.SetZero()
		return nil
	}
	return assignValue(target, reflect.ValueOf(x))
}

func assignValue(target, v reflect.Value) error {
	if !v.Type().AssignableTo(target.Type()) {
		return merr.WrapErrTypeMismatch(target.Type().String(), v.Type().String())
	}
	target.Set(v)
	return nil
}

// Package valuecodec 提供常用值类型的字符串编解码，通过 Registry 接入对象图编解码器。
package valuecodec

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/simsave/pkg/objgraph"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

// GridPoint 是地图网格坐标，写作 "x,y"。
type GridPoint struct {
	X, Y int
}

func (p GridPoint) String() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

func ParseGridPoint(s string) (GridPoint, error) {
	parts, err := splitExact(s, ",", 2)
	if err != nil {
		return GridPoint{}, errors.Wrapf(err, "grid point %q", s)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return GridPoint{}, merr.WrapErrParameterInvalidMsg("grid point %q: %v", s, err)
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil {
		return GridPoint{}, merr.WrapErrParameterInvalidMsg("grid point %q: %v", s, err)
	}
	return GridPoint{X: x, Y: y}, nil
}

// Color 是 RGBA 颜色，写作 "#RRGGBBAA"。
type Color struct {
	R, G, B, A uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

// ParseColor 同时接受 "#RRGGBB"（不透明）与 "#RRGGBBAA"。
func ParseColor(s string) (Color, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return Color{}, merr.WrapErrParameterInvalidMsg("color %q: want #RRGGBB or #RRGGBBAA", s)
	}
	if len(hex) == 6 {
		hex += "FF"
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, merr.WrapErrParameterInvalidMsg("color %q: %v", s, err)
	}
	return Color{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

// Date 是不带时区的日历日期，写作 "2006-01-02"。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// Time 返回当天零点的 UTC 时间。
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, merr.WrapErrParameterInvalidMsg("date %q: %v", s, err)
	}
	return DateOf(t), nil
}

// FormatFloats 以空格分隔写出浮点数组。
func FormatFloats(values []float64) string {
	return strings.Join(lo.Map(values, func(v float64, _ int) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}), " ")
}

// ParseFloats 解析 FormatFloats 的输出，元素个数必须恰好为 n。
func ParseFloats(s string, n int) ([]float64, error) {
	parts, err := splitExact(s, " ", n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, merr.WrapErrParameterInvalidMsg("element %d of %q: %v", i, s, err)
		}
		out[i] = f
	}
	return out, nil
}

func splitExact(s, sep string, n int) ([]string, error) {
	parts := lo.Filter(strings.Split(strings.TrimSpace(s), sep), func(p string, _ int) bool {
		return p != ""
	})
	if len(parts) != n {
		return nil, merr.WrapErrArityMismatch(n, len(parts))
	}
	return lo.Map(parts, func(p string, _ int) string { return strings.TrimSpace(p) }), nil
}

// DeclareFloatArray 为定长浮点数组类型 T（例如 type Traits [5]float64）声明编解码函数。
func DeclareFloatArray[T any](reg *objgraph.Registry) error {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Array || (t.Elem().Kind() != reflect.Float64 && t.Elem().Kind() != reflect.Float32) {
		return merr.WrapErrParameterInvalidMsg("%s is not a float array", t)
	}
	n := t.Len()
	objgraph.DeclareValue(reg,
		func(v T) (string, error) {
			rv := reflect.ValueOf(v)
			values := make([]float64, n)
			for i := range values {
				values[i] = rv.Index(i).Float()
			}
			return FormatFloats(values), nil
		},
		func(s string) (T, error) {
			var out T
			values, err := ParseFloats(s, n)
			if err != nil {
				return out, err
			}
			rv := reflect.ValueOf(&out).Elem()
			for i, f := range values {
				rv.Index(i).SetFloat(f)
			}
			return out, nil
		})
	return nil
}

// DeclareDefaults 声明 GridPoint、Color 与 Date 的编解码函数。
// 需要在注册引用这些类型的对象类型之前调用。
func DeclareDefaults(reg *objgraph.Registry) {
	objgraph.DeclareValue(reg, stringer[GridPoint], ParseGridPoint)
	objgraph.DeclareValue(reg, stringer[Color], ParseColor)
	objgraph.DeclareValue(reg, stringer[Date], ParseDate)
}

func stringer[T fmt.Stringer](v T) (string, error) {
	return v.String(), nil
}

package objgraph

import (
	"bytes"
	"encoding"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/simsave/pkg/log"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

type EncoderOption func(*Encoder)

// WithIndent 设置每一级的缩进，仅影响可读性。
func WithIndent(indent string) EncoderOption {
	return func(e *Encoder) {
		e.indent = indent
	}
}

// Encoder 将对象图写入流，每条顶层记录以换行结束。
type Encoder struct {
	log.Binder

	reg    *Registry
	indent string
	tw     *textWriter
	path   valuePath
}

func NewEncoder(w io.Writer, reg *Registry, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		reg:    reg,
		indent: defaultIndent,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tw = newTextWriter(w, e.indent)
	e.BindComponent("encoder")
	return e
}

func (e *Encoder) Written() int64 {
	return e.tw.n
}

// Serialize 将 root 及其可达的全部对象写成一条记录，返回 root 的 ID；
// root 不是对象时返回 NoID。sess 中已写出过的对象只输出回引。
// 记录完整生成后才一次写入 w，失败的记录不会写出任何字节。
// 失败后 sess 进入损坏状态，直到调用 Reset。
func (e *Encoder) Serialize(sess *WriteSession, root any) (int, error) {
	if err := sess.check(); err != nil {
		return NoID, err
	}
	e.path = e.path[:0]

	before := sess.Stats()
	id, err := e.encode(sess, reflect.ValueOf(root))
	if err == nil {
		e.tw.newLine()
		if ferr := e.tw.flush(); ferr != nil {
			err = merr.WrapErrIoFailed("object stream", ferr)
		}
	}
	if err != nil {
		e.tw.discard()
		e.Logger().RatedWarn(1, "serialize failed", log.FieldSession(sess.ID()), zap.Error(err))
		return NoID, sess.fail(err)
	}
	after := sess.Stats()
	e.Logger().Debug("record serialized",
		log.FieldSession(sess.ID()),
		log.FieldObjectID(id),
		zap.Int("objects", after.Objects-before.Objects),
		zap.Int("backrefs", after.Backrefs-before.Backrefs))
	return id, nil
}

func (e *Encoder) fail(err error) error {
	return errors.Wrapf(err, "writing %s", e.path)
}

func (e *Encoder) encode(sess *WriteSession, v reflect.Value) (int, error) {
	if !v.IsValid() {
		e.tw.write(literalNull)
		return NoID, nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice:
		if v.IsNil() {
			e.tw.write(literalNull)
			return NoID, nil
		}
		if v.Kind() == reflect.Interface {
			return e.encode(sess, v.Elem())
		}
	}

	t := v.Type()
	if fn, ok := e.reg.WriterFor(t); ok {
		s, err := fn(v.Interface())
		if err != nil {
			return NoID, e.fail(errors.Wrapf(err, "writer for %s", t))
		}
		e.tw.write(quote(s))
		return NoID, nil
	}
	if isTextCodec(t) {
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return NoID, e.fail(errors.Wrapf(err, "marshal %s", t))
		}
		e.tw.write(quote(string(b)))
		return NoID, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.tw.write(literalTrue)
		} else {
			e.tw.write(literalFalse)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.tw.write(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.tw.write(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		s, ok := formatFloat(v.Float(), t.Bits())
		if !ok {
			return NoID, e.fail(merr.WrapErrUnsupportedValue(t.String(), "NaN and infinities have no literal"))
		}
		e.tw.write(s)
	case reflect.String:
		e.tw.write(quote(v.String()))
	case reflect.Slice:
		if t == tupleType {
			if n := v.Len(); n < minTupleArity || n > maxTupleArity {
				return NoID, e.fail(merr.WrapErrArityOutOfRange(n, minTupleArity, maxTupleArity))
			}
			return NoID, e.encodeSeq(sess, v, v.Len(), '(', ')')
		}
		return NoID, e.encodeSeq(sess, v, v.Len(), '[', ']')
	case reflect.Array:
		return NoID, e.encodeSeq(sess, v, v.Len(), '[', ']')
	case reflect.Struct:
		if isTupleStruct(t) {
			return NoID, e.encodeSeq(sess, v, t.NumField(), '(', ')')
		}
		return NoID, e.fail(merr.WrapErrUnsupportedValue(t.String(), "struct values need a declared writer"))
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return e.encodeObject(sess, v)
		}
		return NoID, e.fail(merr.WrapErrUnsupportedValue(t.String()))
	default:
		return NoID, e.fail(merr.WrapErrUnsupportedValue(t.String()))
	}
	return NoID, nil
}

// encodeSeq 写出列表或元组，只含标量的序列保持单行。
func (e *Encoder) encodeSeq(sess *WriteSession, v reflect.Value, n int, open, closing byte) error {
	if n == 0 {
		e.tw.write(string([]byte{open, closing}))
		return nil
	}
	elem := func(i int) reflect.Value {
		if v.Kind() == reflect.Struct {
			return v.Field(i)
		}
		return v.Index(i)
	}
	inline := true
	for i := 0; i < n && inline; i++ {
		inline = e.isScalar(elem(i))
	}

	e.tw.write(string(open))
	if !inline {
		e.tw.in()
		e.tw.newLine()
	}
	for i := 0; i < n; i++ {
		e.path.push(indexSeg(i))
		_, err := e.encode(sess, elem(i))
		e.path.pop()
		if err != nil {
			return err
		}
		if i < n-1 {
			e.tw.write(",")
			if inline {
				e.tw.write(" ")
			} else {
				e.tw.newLine()
			}
		}
	}
	if !inline {
		e.tw.out()
		e.tw.newLine()
	}
	e.tw.write(string(closing))
	return nil
}

func (e *Encoder) encodeObject(sess *WriteSession, v reflect.Value) (int, error) {
	desc, ok := e.reg.descriptorByType(v.Type().Elem())
	if !ok {
		return NoID, e.fail(merr.WrapErrUnknownType(v.Type().Elem().String(), "object types must be registered before they are written"))
	}
	id, defining := sess.assign(v)
	e.tw.write(objectSeg(id))
	if !defining {
		return id, nil
	}

	e.path.push(objectSeg(id))
	defer e.path.pop()

	e.tw.write("{")
	e.tw.in()
	e.tw.newLine()
	e.tw.write(typeField + ": " + quote(desc.tag))
	sv := v.Elem()
	for i := range desc.fields {
		f := &desc.fields[i]
		e.tw.write(",")
		e.tw.newLine()
		e.tw.write(f.name + ": ")
		e.path.push(fieldSeg(f.name))
		_, err := e.encode(sess, fieldValue(sv, f.index))
		e.path.pop()
		if err != nil {
			return NoID, err
		}
	}
	e.tw.out()
	e.tw.newLine()
	e.tw.write("}")
	return id, nil
}

func (e *Encoder) isScalar(v reflect.Value) bool {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return true
	}
	t := v.Type()
	if e.reg.HasWriter(t) || isTextCodec(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// formatFloat 输出能还原 f 的最短十进制表示，并始终带小数部分，保证读回时仍是浮点数。
func formatFloat(f float64, bits int) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s, true
}

// Marshal 使用同一个新会话写出所有 root，后面的 root 可以回引前面已写出的对象。
func Marshal(reg *Registry, roots ...any) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, reg)
	sess := NewWriteSession()
	for _, root := range roots {
		if _, err := enc.Serialize(sess, root); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

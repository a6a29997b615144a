package objgraph

import (
	"bufio"
	"bytes"
	"encoding"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/simsave/pkg/log"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

// Decoder 读取 Encoder 写出的记录。
// 每次 Deserialize 只读取一个顶层值，再次调用即可读取下一条记录。
type Decoder struct {
	log.Binder

	reg  *Registry
	r    *bufio.Reader
	pos  merr.Position
	prev merr.Position
	path valuePath
}

func NewDecoder(r io.Reader, reg *Registry) *Decoder {
	d := &Decoder{
		reg: reg,
		r:   bufio.NewReader(r),
		pos: merr.Position{Line: 1, Column: 1},
	}
	d.BindComponent("decoder")
	return d
}

// Position 返回下一个未读字符的行列号。
func (d *Decoder) Position() merr.Position {
	return d.pos
}

// More 判断流中是否还有下一条记录。
func (d *Decoder) More() bool {
	_, err := d.skipSpace()
	return err == nil
}

// Deserialize 按自然 Go 形式读取一条记录：对象为已注册类型的指针，
// 列表为 []any，元组为 Tuple，数字为 int 或 float64。
// 失败后 sess 进入损坏状态，直到调用 Reset。
func (d *Decoder) Deserialize(sess *ReadSession) (any, error) {
	var out any
	if err := d.DeserializeInto(sess, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeserializeInto 将一条记录读入 out 指向的值。
func (d *Decoder) DeserializeInto(sess *ReadSession, out any) error {
	if err := sess.check(); err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return merr.WrapErrParameterInvalidMsg("decode target must be a non-nil pointer, got %T", out)
	}
	d.path = d.path[:0]
	before := sess.Stats()
	if err := d.decodeValue(sess, rv.Elem()); err != nil {
		d.Logger().RatedWarn(1, "deserialize failed", log.FieldSession(sess.ID()), zap.Error(err))
		return sess.fail(err)
	}
	after := sess.Stats()
	d.Logger().Debug("record deserialized",
		log.FieldSession(sess.ID()),
		zap.Int("objects", after.Objects-before.Objects),
		zap.Int("backrefs", after.Backrefs-before.Backrefs))
	return nil
}

func Decode[T any](d *Decoder, sess *ReadSession) (T, error) {
	var v T
	err := d.DeserializeInto(sess, &v)
	return v, err
}

// ParseValue 只解析不实例化。对象 ID 仍记录在 sess 中，用于区分回引与对象体。
func (d *Decoder) ParseValue(sess *ReadSession) (Value, error) {
	if err := sess.check(); err != nil {
		return Value{}, err
	}
	d.path = d.path[:0]
	v, err := d.parseRaw(sess)
	if err != nil {
		return Value{}, sess.fail(err)
	}
	return v, nil
}

// Unmarshal 使用新会话从 data 中读取一条记录到 out。
func Unmarshal(reg *Registry, data []byte, out any) error {
	return NewDecoder(bytes.NewReader(data), reg).DeserializeInto(NewReadSession(), out)
}

func (d *Decoder) decodeValue(sess *ReadSession, target reflect.Value) error {
	c, err := d.skipSpace()
	if err != nil {
		return d.eof(err, "value")
	}
	t := target.Type()
	if parse, ok := d.reg.ParserFor(t); ok {
		return d.decodeText(target, c, func(s string) (any, error) {
			return parse(s)
		})
	}
	if isTextCodec(t) {
		return d.decodeText(target, c, func(s string) (any, error) {
			ptr := reflect.New(t)
			if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return nil, err
			}
			return ptr.Elem().Interface(), nil
		})
	}
	switch c {
	case '#':
		if k := t.Kind(); k != reflect.Pointer && k != reflect.Interface {
			return d.at(merr.WrapErrTypeMismatch(t.String(), KindObject.String()))
		}
		return d.decodeObject(sess, target)
	case '[':
		return d.decodeList(sess, target)
	case '(':
		return d.decodeTuple(sess, target)
	}
	v, err := d.parseScalar(c)
	if err != nil {
		return err
	}
	if err := assignScalar(v, target); err != nil {
		return d.at(err)
	}
	return nil
}

// decodeText 处理声明了解析函数或实现文本反序列化的目标：
// 只接受字符串，null 表示零值。
func (d *Decoder) decodeText(target reflect.Value, c rune, parse func(string) (any, error)) error {
	t := target.Type()
	if c == '#' || c == '[' || c == '(' {
		return d.at(merr.WrapErrTypeMismatch(t.String(), "string, found "+strconv.QuoteRune(c)))
	}
	v, err := d.parseScalar(c)
	if err != nil {
		return err
	}
	switch v.Kind {
	case KindNull:
		target.SetZero()
		return nil
	case KindString:
	default:
		return d.at(merr.WrapErrTypeMismatch(t.String(), v.Kind.String()))
	}
	x, err := parse(v.Text)
	if err != nil {
		return d.at(errors.Wrapf(err, "parse %s from %q", t, v.Text))
	}
	if x == nil {
		target.SetZero()
		return nil
	}
	if err := assignValue(target, reflect.ValueOf(x)); err != nil {
		return d.at(err)
	}
	return nil
}

func (d *Decoder) decodeObject(sess *ReadSession, target reflect.Value) error {
	id, err := d.readID()
	if err != nil {
		return err
	}
	if obj, ok := sess.Lookup(id); ok {
		sess.stats.Backrefs++
		if err := assignValue(target, reflect.ValueOf(obj)); err != nil {
			return d.at(err)
		}
		return nil
	}
	if err := d.expect('{', "object body of "+objectSeg(id)); err != nil {
		return err
	}
	tag, err := d.readTypeField()
	if err != nil {
		return err
	}
	desc, ok := d.reg.descriptorByTag(tag)
	if !ok {
		return d.at(merr.WrapErrUnknownType(tag))
	}
	inst := desc.newInstance()
	if err := assignValue(target, inst); err != nil {
		return d.at(err)
	}
	sess.register(id, inst.Interface())

	d.path.push(objectSeg(id))
	defer d.path.pop()
	elem := inst.Elem()
	return d.readFields(func(name string) error {
		f, ok := desc.field(name)
		if !ok {
			return d.at(merr.WrapErrFieldNotFound(name, "type "+tag))
		}
		return d.decodeValue(sess, fieldValue(elem, f.index))
	})
}

func (d *Decoder) decodeList(sess *ReadSession, target reflect.Value) error {
	t := target.Type()
	switch {
	case t.Kind() == reflect.Slice && t != tupleType:
		out := reflect.MakeSlice(t, 0, 0)
		_, err := d.readSeq('[', ']', "list", func(i int) error {
			out = reflect.Append(out, reflect.Zero(t.Elem()))
			return d.decodeValue(sess, out.Index(i))
		})
		if err != nil {
			return err
		}
		target.Set(out)
		return nil
	case t.Kind() == reflect.Array:
		n, err := d.readSeq('[', ']', "list", func(i int) error {
			if i >= t.Len() {
				return d.at(merr.WrapErrArityMismatch(t.Len(), i+1))
			}
			return d.decodeValue(sess, target.Index(i))
		})
		if err != nil {
			return err
		}
		if n != t.Len() {
			return d.at(merr.WrapErrArityMismatch(t.Len(), n))
		}
		return nil
	case t.Kind() == reflect.Interface:
		items, err := d.decodeItems(sess, '[', ']', "list")
		if err != nil {
			return err
		}
		if err := assignValue(target, reflect.ValueOf(items)); err != nil {
			return d.at(err)
		}
		return nil
	}
	return d.at(merr.WrapErrTypeMismatch(t.String(), KindList.String()))
}

func (d *Decoder) decodeTuple(sess *ReadSession, target reflect.Value) error {
	t := target.Type()
	switch {
	case t == tupleType || t.Kind() == reflect.Interface:
		items, err := d.decodeItems(sess, '(', ')', "tuple")
		if err != nil {
			return err
		}
		if n := len(items); n < minTupleArity || n > maxTupleArity {
			return d.at(merr.WrapErrArityOutOfRange(n, minTupleArity, maxTupleArity))
		}
		if err := assignValue(target, reflect.ValueOf(Tuple(items))); err != nil {
			return d.at(err)
		}
		return nil
	case isTupleStruct(t):
		arity := t.NumField()
		n, err := d.readSeq('(', ')', "tuple", func(i int) error {
			if i >= arity {
				return d.at(merr.WrapErrArityMismatch(arity, i+1))
			}
			return d.decodeValue(sess, target.Field(i))
		})
		if err != nil {
			return err
		}
		if n != arity {
			return d.at(merr.WrapErrArityMismatch(arity, n))
		}
		return nil
	}
	return d.at(merr.WrapErrTypeMismatch(t.String(), KindTuple.String()))
}

func (d *Decoder) decodeItems(sess *ReadSession, open, closing rune, what string) ([]any, error) {
	items := []any{}
	_, err := d.readSeq(open, closing, what, func(i int) error {
		items = append(items, nil)
		return d.decodeValue(sess, reflect.ValueOf(&items[i]).Elem())
	})
	return items, err
}

func (d *Decoder) parseRaw(sess *ReadSession) (Value, error) {
	c, err := d.skipSpace()
	if err != nil {
		return Value{}, d.eof(err, "value")
	}
	switch c {
	case '#':
		return d.parseRawObject(sess)
	case '[', '(':
		kind, closing, what := KindList, ']', "list"
		if c == '(' {
			kind, closing, what = KindTuple, ')', "tuple"
		}
		items := []Value{}
		_, err := d.readSeq(c, closing, what, func(int) error {
			v, err := d.parseRaw(sess)
			items = append(items, v)
			return err
		})
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Items: items}, nil
	}
	return d.parseScalar(c)
}

func (d *Decoder) parseRawObject(sess *ReadSession) (Value, error) {
	id, err := d.readID()
	if err != nil {
		return Value{}, err
	}
	if sess.defined.Contain(id) {
		sess.stats.Backrefs++
		return ObjectValue(&Object{ID: id, Backref: true}), nil
	}
	if err := d.expect('{', "object body of "+objectSeg(id)); err != nil {
		return Value{}, err
	}
	tag, err := d.readTypeField()
	if err != nil {
		return Value{}, err
	}
	sess.defined.Insert(id)
	sess.stats.Objects++

	obj := &Object{ID: id, Type: tag}
	d.path.push(objectSeg(id))
	defer d.path.pop()
	err = d.readFields(func(name string) error {
		v, err := d.parseRaw(sess)
		obj.Fields = append(obj.Fields, Field{Name: name, Value: v})
		return err
	})
	if err != nil {
		return Value{}, err
	}
	return ObjectValue(obj), nil
}

// readTypeField 读取对象体开头必需的 `type: "<tag>"`。
func (d *Decoder) readTypeField() (string, error) {
	c, err := d.skipSpace()
	if err != nil {
		return "", d.eof(err, "type field")
	}
	if c == '}' {
		return "", d.at(merr.WrapErrFieldNotFound(typeField, "object body must start with it"))
	}
	name, err := d.readIdent("type field")
	if err != nil {
		return "", err
	}
	if name != typeField {
		return "", d.at(merr.WrapErrUnexpectedFieldOrder(typeField, name))
	}
	if err := d.expect(':', "\":\" after type"); err != nil {
		return "", err
	}
	c, err = d.skipSpace()
	if err != nil {
		return "", d.eof(err, "type name")
	}
	if c != '"' {
		return "", d.syntax("type name string", c)
	}
	return d.readString()
}

// readFields 读取 `, name: value` 直到右花括号，字段值由 fn 读取。
func (d *Decoder) readFields(fn func(name string) error) error {
	for {
		c, err := d.skipSpace()
		if err != nil {
			return d.eof(err, "object body")
		}
		if c == '}' {
			_, _ = d.next()
			return nil
		}
		if c != ',' {
			return d.syntax(`"," or "}"`, c)
		}
		_, _ = d.next()
		name, err := d.readIdent("field name")
		if err != nil {
			return err
		}
		if err := d.expect(':', "\":\" after "+name); err != nil {
			return err
		}
		d.path.push(fieldSeg(name))
		err = fn(name)
		d.path.pop()
		if err != nil {
			return err
		}
	}
}

// readSeq 读取括号包围、逗号分隔的序列并返回元素个数，第 i 个元素由 fn 读取。
func (d *Decoder) readSeq(open, closing rune, what string, fn func(i int) error) (int, error) {
	if err := d.expect(open, what); err != nil {
		return 0, err
	}
	c, err := d.skipSpace()
	if err != nil {
		return 0, d.eof(err, what)
	}
	if c == closing {
		_, _ = d.next()
		return 0, nil
	}
	for i := 0; ; i++ {
		d.path.push(indexSeg(i))
		err := fn(i)
		d.path.pop()
		if err != nil {
			return 0, err
		}
		c, err := d.skipSpace()
		if err != nil {
			return 0, d.eof(err, what)
		}
		switch c {
		case closing:
			_, _ = d.next()
			return i + 1, nil
		case ',':
			_, _ = d.next()
		default:
			return 0, d.syntax(`"," or "`+string(closing)+`"`, c)
		}
	}
}

func (d *Decoder) parseScalar(c rune) (Value, error) {
	switch {
	case c == '"':
		s, err := d.readString()
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case c == '-' || c == '.' || isDigit(c):
		text, err := d.readNumber()
		if err != nil {
			return Value{}, err
		}
		return NumberValue(text), nil
	case isIdentStart(c):
		word, err := d.readIdent("literal")
		if err != nil {
			return Value{}, err
		}
		switch word {
		case literalNull:
			return NullValue(), nil
		case literalTrue:
			return BoolValue(true), nil
		case literalFalse:
			return BoolValue(false), nil
		}
		return Value{}, d.at(merr.WrapErrSyntax("null, True or False", strconv.Quote(word), d.pos, d.path.String()))
	}
	return Value{}, d.syntax("value", c)
}

func (d *Decoder) readString() (string, error) {
	if err := d.expect('"', "string"); err != nil {
		return "", err
	}
	start := d.prev
	var sb strings.Builder
	escaped := false
	for {
		c, err := d.next()
		if err != nil {
			return "", d.eof(err, "string")
		}
		if c == '"' && !escaped {
			break
		}
		escaped = c == '\\' && !escaped
		sb.WriteRune(c)
	}
	s, err := unquote(sb.String())
	if err != nil {
		return "", merr.WrapErrSyntax("valid string escape", strconv.Quote(sb.String()), start, d.path.String())
	}
	return s, nil
}

// readNumber 读取 ["-"] digits ["." digits]，小数点两侧都必须有数字。
// 以 "." 开头的 token 也会进入这里，并作为格式错误的数字报告。
func (d *Decoder) readNumber() (string, error) {
	start := d.pos
	var sb strings.Builder
	intDigits, fracDigits, dot := 0, 0, false
	for {
		c, err := d.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", d.eof(err, "number")
		}
		if isDelimiter(c) {
			break
		}
		switch {
		case isDigit(c) && dot:
			fracDigits++
		case isDigit(c):
			intDigits++
		case c == '-' && sb.Len() == 0:
		case c == '.' && !dot && intDigits > 0:
			dot = true
		default:
			return "", d.syntax("digit", c)
		}
		sb.WriteRune(c)
		_, _ = d.next()
	}
	if intDigits == 0 || dot && fracDigits == 0 {
		return "", merr.WrapErrSyntax("number", strconv.Quote(sb.String()), start, d.path.String())
	}
	return sb.String(), nil
}

func isDelimiter(c rune) bool {
	return isSpace(c) || c == ',' || c == ']' || c == ')' || c == '}'
}

func (d *Decoder) readID() (int, error) {
	if err := d.expect('#', "object"); err != nil {
		return 0, err
	}
	var sb strings.Builder
	for {
		c, err := d.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, d.eof(err, "object id")
		}
		if !isDigit(c) {
			break
		}
		sb.WriteRune(c)
		_, _ = d.next()
	}
	if sb.Len() == 0 {
		c, err := d.peek()
		if err != nil {
			return 0, d.eof(err, "object id")
		}
		return 0, d.syntax("object id", c)
	}
	id, err := strconv.Atoi(sb.String())
	if err != nil {
		return 0, d.at(merr.WrapErrSyntax("object id", strconv.Quote(sb.String()), d.pos, d.path.String()))
	}
	return id, nil
}

func (d *Decoder) readIdent(what string) (string, error) {
	c, err := d.skipSpace()
	if err != nil {
		return "", d.eof(err, what)
	}
	if !isIdentStart(c) {
		return "", d.syntax(what, c)
	}
	var sb strings.Builder
	for {
		c, err := d.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", d.eof(err, what)
		}
		if !isIdentPart(c) {
			break
		}
		sb.WriteRune(c)
		_, _ = d.next()
	}
	return sb.String(), nil
}

// expect 跳过空白并消费字符 c。
func (d *Decoder) expect(c rune, what string) error {
	got, err := d.skipSpace()
	if err != nil {
		return d.eof(err, what)
	}
	if got != c {
		return d.syntax(strconv.QuoteRune(c), got)
	}
	_, _ = d.next()
	return nil
}

// skipSpace 返回下一个非空白字符，但不消费它。
func (d *Decoder) skipSpace() (rune, error) {
	for {
		c, err := d.peek()
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			return c, nil
		}
		_, _ = d.next()
	}
}

func (d *Decoder) peek() (rune, error) {
	c, err := d.next()
	if err != nil {
		return 0, err
	}
	d.unread()
	return c, nil
}

func (d *Decoder) next() (rune, error) {
	c, _, err := d.r.ReadRune()
	if err != nil {
		return 0, err
	}
	d.prev = d.pos
	if c == '\n' {
		d.pos.Line++
		d.pos.Column = 1
	} else {
		d.pos.Column++
	}
	return c, nil
}

func (d *Decoder) unread() {
	if d.r.UnreadRune() == nil {
		d.pos = d.prev
	}
}

// eof 将读取结束映射为 StreamTruncated，真正的 I/O 错误映射为 IoFailed。
func (d *Decoder) eof(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return merr.WrapErrStreamTruncated(what, d.pos, d.path.String())
	}
	return merr.WrapErrIoFailed("object stream", err)
}

func (d *Decoder) syntax(expected string, found rune) error {
	return merr.WrapErrSyntax(expected, strconv.QuoteRune(found), d.pos, d.path.String())
}

func (d *Decoder) at(err error) error {
	return errors.Wrapf(err, "at %s in %s", d.pos, d.path)
}

package objgraph

import (
	"strconv"
	"strings"
)

// Kind 表示 Value 对应的语法产生式。
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindTuple
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindList:   "list",
	KindTuple:  "tuple",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value 是尚未绑定到 Go 类型的解析结果。
// 数字保留原始字面量，在确定目标类型之前不会损失精度。
type Value struct {
	Kind   Kind
	Bool   bool
	Text   string
	Items  []Value
	Object *Object
}

// Object 要么是对象的定义（Type 与 Fields 有值），要么是对会话中已定义 ID 的回引。
type Object struct {
	ID      int
	Type    string
	Fields  []Field
	Backref bool
}

type Field struct {
	Name  string
	Value Value
}

func NullValue() Value              { return Value{Kind: KindNull} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func NumberValue(text string) Value { return Value{Kind: KindNumber, Text: text} }
func StringValue(s string) Value    { return Value{Kind: KindString, Text: s} }
func ListValue(items ...Value) Value {
	return Value{Kind: KindList, Items: items}
}
func TupleValue(items ...Value) Value {
	return Value{Kind: KindTuple, Items: items}
}
func ObjectValue(obj *Object) Value {
	return Value{Kind: KindObject, Object: obj}
}

// Field 返回对象值中指定名称的字段。
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != KindObject || v.Object == nil {
		return Value{}, false
	}
	for _, f := range v.Object.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Walk 深度优先遍历 v 及其内部所有值，fn 返回 false 时跳过当前值的子节点。
func (v Value) Walk(fn func(Value) bool) {
	if !fn(v) {
		return
	}
	switch v.Kind {
	case KindList, KindTuple:
		for _, item := range v.Items {
			item.Walk(fn)
		}
	case KindObject:
		if v.Object != nil {
			for _, f := range v.Object.Fields {
				f.Value.Walk(fn)
			}
		}
	}
}

// String 以单行形式按编码器使用的语法输出 v。
func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v Value) render(sb *strings.Builder) {
	switch v.Kind {
	case KindNull:
		sb.WriteString(literalNull)
	case KindBool:
		if v.Bool {
			sb.WriteString(literalTrue)
		} else {
			sb.WriteString(literalFalse)
		}
	case KindNumber:
		sb.WriteString(v.Text)
	case KindString:
		sb.WriteString(quote(v.Text))
	case KindList, KindTuple:
		open, closing := byte('['), byte(']')
		if v.Kind == KindTuple {
			open, closing = '(', ')'
		}
		sb.WriteByte(open)
		for i, item := range v.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.render(sb)
		}
		sb.WriteByte(closing)
	case KindObject:
		if v.Object == nil {
			sb.WriteString(literalNull)
			return
		}
		sb.WriteByte('#')
		sb.WriteString(strconv.Itoa(v.Object.ID))
		if v.Object.Backref {
			return
		}
		sb.WriteString("{" + typeField + ": ")
		sb.WriteString(quote(v.Object.Type))
		for _, f := range v.Object.Fields {
			sb.WriteString(", " + f.Name + ": ")
			f.Value.render(sb)
		}
		sb.WriteByte('}')
	}
}

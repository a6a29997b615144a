package objgraph

import (
	"encoding"
	"reflect"
	"slices"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/simsave/pkg/util/merr"
	"github.com/lk2023060901/simsave/pkg/util/typeutil"
)

// saveTag 用于让未导出字段参与存档（`save:"name"`），或排除任意字段（`save:"-"`）。
const saveTag = "save"

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

type fieldDesc struct {
	name  string
	index []int
	typ   reflect.Type
}

// descriptor 是注册时为每个类型构建一次的描述表：标签、工厂函数，以及按写出顺序排列的字段。
type descriptor struct {
	tag         string
	typ         reflect.Type
	fields      []fieldDesc
	byName      map[string]int
	newInstance func() reflect.Value
}

func (d *descriptor) field(name string) (*fieldDesc, bool) {
	i, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return &d.fields[i], true
}

// 调用方需持有 r.mu。
func (r *Registry) buildDescriptor(t reflect.Type, tag string) (*descriptor, error) {
	desc := &descriptor{
		tag:    tag,
		typ:    t,
		byName: make(map[string]int),
		newInstance: func() reflect.Value {
			return reflect.New(t)
		},
	}
	if err := r.collectFields(desc, t, nil, typeutil.NewSet[string]()); err != nil {
		return nil, err
	}
	for i, f := range desc.fields {
		desc.byName[f.name] = i
	}
	return desc, nil
}

// collectFields 先按声明顺序收集 t 自身的字段，再收集嵌入结构体的字段。
// 外层已占用的字段名会遮蔽内层同名字段。
func (r *Registry) collectFields(desc *descriptor, t reflect.Type, prefix []int, taken typeutil.Set[string]) error {
	var embedded []reflect.StructField
	local := typeutil.NewSet[string]()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup(saveTag)
		if tag == "-" {
			continue
		}
		if sf.Anonymous && tag == "" && sf.Type.Kind() == reflect.Struct && !isTupleStruct(sf.Type) {
			embedded = append(embedded, sf)
			continue
		}
		if !sf.IsExported() && !tagged {
			continue
		}
		name := sf.Name
		if tag != "" {
			name = tag
		}
		if name == typeField || !validIdentifier(name) {
			return merr.WrapErrFieldNameInvalid(name, "field "+sf.Name+" of "+t.String())
		}
		if local.Contain(name) {
			return merr.WrapErrFieldNameInvalid(name, "declared twice in "+t.String())
		}
		local.Insert(name)
		if taken.Contain(name) {
			continue
		}
		if err := r.checkFieldType(sf.Type); err != nil {
			return errors.Wrapf(err, "field %s", name)
		}
		taken.Insert(name)
		desc.fields = append(desc.fields, fieldDesc{
			name:  name,
			index: append(slices.Clone(prefix), i),
			typ:   sf.Type,
		})
	}
	for _, sf := range embedded {
		if err := r.collectFields(desc, sf.Type, append(slices.Clone(prefix), sf.Index...), taken); err != nil {
			return err
		}
	}
	return nil
}

// checkFieldType 拒绝永远无法读写的字段类型。
// 结构体指针在这里放行，指向的类型是否注册要到写出时才能确定。
func (r *Registry) checkFieldType(t reflect.Type) error {
	for {
		if r.hasCodecLocked(t) {
			return nil
		}
		switch t.Kind() {
		case reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Pointer:
			if t.Elem().Kind() == reflect.Struct {
				return nil
			}
			return merr.WrapErrUnsupportedValue(t.String(), "pointers must point to structs")
		case reflect.Struct:
			if !isTupleStruct(t) {
				return merr.WrapErrUnsupportedValue(t.String(), "struct values need a declared writer and parser or text marshalling")
			}
			for i := 0; i < t.NumField(); i++ {
				if err := r.checkFieldType(t.Field(i).Type); err != nil {
					return err
				}
			}
			return nil
		case reflect.Map, reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
			return merr.WrapErrUnsupportedValue(t.String())
		default:
			return nil
		}
	}
}

func (r *Registry) hasCodecLocked(t reflect.Type) bool {
	if _, ok := r.writers[t]; ok {
		return true
	}
	return isTextCodec(t)
}

// isTextCodec 判断 t 是否能双向地以文本形式描述自身。
func isTextCodec(t reflect.Type) bool {
	return t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface &&
		t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// fieldValue 返回可寻址结构体 v 中 index 处字段的可写视图，未导出字段同样适用。
func fieldValue(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		v = v.Field(i)
	}
	if !v.CanSet() {
		v = reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
	}
	return v
}

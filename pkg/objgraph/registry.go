package objgraph

import (
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/simsave/pkg/log"
	"github.com/lk2023060901/simsave/pkg/util/merr"
	"github.com/lk2023060901/simsave/pkg/util/typeutil"
)

// WriterFunc 将已声明类型的值转换为字符串字面量。
type WriterFunc func(v any) (string, error)

// ParserFunc 是 WriterFunc 的逆操作。
type ParserFunc func(s string) (any, error)

// Registry 是允许出现在流中的对象类型白名单，
// 同时保存引擎无法原生处理的值类型的写出与解析函数。
//
// 注册应在启动阶段完成，之后 Registry 可被任意多个编码器与解码器并发使用。
// 值类型的编解码函数需要先于引用它们的对象类型声明。
type Registry struct {
	mu      sync.RWMutex
	byTag   map[string]*descriptor
	byType  map[reflect.Type]*descriptor
	writers map[reflect.Type]WriterFunc
	parsers map[reflect.Type]ParserFunc
}

func NewRegistry() *Registry {
	return &Registry{
		byTag:   make(map[string]*descriptor),
		byType:  make(map[reflect.Type]*descriptor),
		writers: make(map[reflect.Type]WriterFunc),
		parsers: make(map[reflect.Type]ParserFunc),
	}
}

// Register 以 "<包路径>.<类型名>" 为标签注册结构体类型 T，读写时以 *T 出现。
func Register[T any](reg *Registry) error {
	t := structTypeOf(reflect.TypeFor[T]())
	if t == nil {
		return merr.WrapErrParameterInvalidMsg("cannot register %s: object types must be structs", reflect.TypeFor[T]())
	}
	if t.Name() == "" {
		return merr.WrapErrParameterInvalidMsg("anonymous struct %s needs an explicit tag", t)
	}
	return reg.register(t, t.PkgPath()+"."+t.Name())
}

// RegisterAs 与 Register 相同，但使用显式指定的标签。
func RegisterAs[T any](reg *Registry, tag string) error {
	t := structTypeOf(reflect.TypeFor[T]())
	if t == nil {
		return merr.WrapErrParameterInvalidMsg("cannot register %s: object types must be structs", reflect.TypeFor[T]())
	}
	if tag == "" {
		return merr.WrapErrParameterMissing("tag")
	}
	return reg.register(t, tag)
}

// MustRegister 用于包初始化，出错时 panic。
func MustRegister[T any](reg *Registry) {
	if err := Register[T](reg); err != nil {
		panic(err)
	}
}

func structTypeOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || isTupleStruct(t) {
		return nil
	}
	return t
}

func (r *Registry) register(t reflect.Type, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byTag[tag]; ok {
		return merr.WrapErrDuplicateType(tag, "already bound to "+prev.typ.String())
	}
	if prev, ok := r.byType[t]; ok {
		return merr.WrapErrDuplicateType(tag, t.String()+" already registered as "+prev.tag)
	}
	desc, err := r.buildDescriptor(t, tag)
	if err != nil {
		return errors.Wrapf(err, "register %s", t)
	}
	r.byTag[tag] = desc
	r.byType[t] = desc
	log.Debug("object type registered", log.FieldComponent("objgraph"),
		zap.String("tag", tag), zap.Int("fields", len(desc.fields)))
	return nil
}

// DeclareWriter 为动态类型恰好为 t 的值设置写出函数。
func (r *Registry) DeclareWriter(t reflect.Type, fn WriterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[t] = fn
}

// DeclareParser 为类型恰好为 t 的目标设置解析函数，返回值必须可赋值给 t。
func (r *Registry) DeclareParser(t reflect.Type, fn ParserFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[t] = fn
}

// DeclareValue 为 T 声明一对带类型的写出与解析函数。
func DeclareValue[T any](reg *Registry, write func(T) (string, error), parse func(string) (T, error)) {
	t := reflect.TypeFor[T]()
	reg.DeclareWriter(t, func(v any) (string, error) {
		return write(v.(T))
	})
	reg.DeclareParser(t, func(s string) (any, error) {
		return parse(s)
	})
}

func (r *Registry) HasWriter(t reflect.Type) bool {
	_, ok := r.WriterFor(t)
	return ok
}

func (r *Registry) WriterFor(t reflect.Type) (WriterFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.writers[t]
	return fn, ok
}

func (r *Registry) ParserFor(t reflect.Type) (ParserFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.parsers[t]
	return fn, ok
}

func (r *Registry) Lookup(tag string) (reflect.Type, bool) {
	desc, ok := r.descriptorByTag(tag)
	if !ok {
		return nil, false
	}
	return desc.typ, true
}

// TagOf 返回已注册结构体类型（或其指针）的标签。
func (r *Registry) TagOf(t reflect.Type) (string, bool) {
	st := structTypeOf(t)
	if st == nil {
		return "", false
	}
	desc, ok := r.descriptorByType(st)
	if !ok {
		return "", false
	}
	return desc.tag, true
}

// Tags 按字典序返回全部已注册标签。
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := typeutil.NewSet[string]()
	for tag := range r.byTag {
		tags.Insert(tag)
	}
	return typeutil.Sorted(tags)
}

// FieldNames 按写出顺序返回已注册类型的存档字段名。
func (r *Registry) FieldNames(tag string) ([]string, bool) {
	desc, ok := r.descriptorByTag(tag)
	if !ok {
		return nil, false
	}
	names := make([]string, len(desc.fields))
	for i, f := range desc.fields {
		names[i] = f.name
	}
	return names, true
}

func (r *Registry) descriptorByTag(tag string) (*descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byTag[tag]
	return desc, ok
}

func (r *Registry) descriptorByType(t reflect.Type) (*descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byType[t]
	return desc, ok
}

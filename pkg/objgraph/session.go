package objgraph

import (
	"reflect"
	"unsafe"

	"github.com/google/uuid"

	"github.com/lk2023060901/simsave/pkg/util/merr"
	"github.com/lk2023060901/simsave/pkg/util/typeutil"
)

// identity 按分配地址而非值来标识对象。
// 结构体与其第一个字段地址相同，因此类型也是键的一部分。
type identity struct {
	typ reflect.Type
	ptr unsafe.Pointer
}

// WriteStats 统计 WriteSession 自上次 Reset 以来的输出。
type WriteStats struct {
	Objects  int
	Backrefs int
}

// WriteSession 是写端的身份表。
// 多次 Serialize 共用同一个会话时，后面的记录可以回引前面记录中的对象。
// 会话同一时间只能被一个 goroutine 使用。
type WriteSession struct {
	id     string
	ids    map[identity]int
	next   int
	stats  WriteStats
	broken error
}

func NewWriteSession() *WriteSession {
	s := &WriteSession{}
	s.Reset()
	return s
}

// Reset 清空全部已分配的 ID，并清除之前的失败状态。
func (s *WriteSession) Reset() {
	s.id = uuid.NewString()
	s.ids = make(map[identity]int)
	s.next = 0
	s.stats = WriteStats{}
	s.broken = nil
}

// ID 用于在日志和存档清单中标识会话。
func (s *WriteSession) ID() string { return s.id }

// Len 返回已分配的 ID 数量。
func (s *WriteSession) Len() int { return s.next }

func (s *WriteSession) Stats() WriteStats { return s.stats }

// Err 返回导致会话损坏的错误。
func (s *WriteSession) Err() error { return s.broken }

// IDOf 返回 obj 已分配的 ID，obj 必须是结构体指针。零大小对象没有稳定身份，总是返回 false。
func (s *WriteSession) IDOf(obj any) (int, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem().Size() == 0 {
		return NoID, false
	}
	id, ok := s.ids[identity{typ: v.Type(), ptr: v.UnsafePointer()}]
	if !ok {
		return NoID, false
	}
	return id, true
}

// assign 返回 v 所指对象的 ID，首次出现时分配新 ID 并返回 defining=true。
// 零大小对象可能共享同一地址，地址无法区分它们，因此每次出现都分配新 ID。
func (s *WriteSession) assign(v reflect.Value) (id int, defining bool) {
	zeroSize := v.Type().Elem().Size() == 0
	key := identity{typ: v.Type(), ptr: v.UnsafePointer()}
	if !zeroSize {
		if id, ok := s.ids[key]; ok {
			s.stats.Backrefs++
			return id, false
		}
	}
	id = s.next
	s.next++
	if !zeroSize {
		s.ids[key] = id
	}
	s.stats.Objects++
	return id, true
}

func (s *WriteSession) check() error {
	if s.broken != nil {
		return merr.WrapErrSessionBroken(s.id, s.broken)
	}
	return nil
}

func (s *WriteSession) fail(err error) error {
	if err != nil && s.broken == nil {
		s.broken = err
	}
	return err
}

type ReadStats struct {
	Objects  int
	Backrefs int
}

// ReadSession 是读端的身份表。
// 对象在分配后、读取任何字段之前即登记，字段因此可以引用仍在填充中的祖先对象。
type ReadSession struct {
	id      string
	objects map[int]any
	// defined 也包含只解析不实例化时见到的 ID。
	defined typeutil.Set[int]
	stats   ReadStats
	broken  error
}

func NewReadSession() *ReadSession {
	s := &ReadSession{}
	s.Reset()
	return s
}

// Reset 清空全部已解析的 ID。
// 读取无关的流之前若不 Reset，其中的 ID 会解析到上一个流的对象上。
func (s *ReadSession) Reset() {
	s.id = uuid.NewString()
	s.objects = make(map[int]any)
	s.defined = typeutil.NewSet[int]()
	s.stats = ReadStats{}
	s.broken = nil
}

func (s *ReadSession) ID() string { return s.id }

// Lookup 返回 id 对应的对象。
func (s *ReadSession) Lookup(id int) (any, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

func (s *ReadSession) Len() int { return s.defined.Len() }

// IDs 按升序返回已定义的 ID。
func (s *ReadSession) IDs() []int { return typeutil.Sorted(s.defined) }

func (s *ReadSession) Stats() ReadStats { return s.stats }

func (s *ReadSession) Err() error { return s.broken }

func (s *ReadSession) register(id int, obj any) {
	s.objects[id] = obj
	s.defined.Insert(id)
	s.stats.Objects++
}

func (s *ReadSession) check() error {
	if s.broken != nil {
		return merr.WrapErrSessionBroken(s.id, s.broken)
	}
	return nil
}

func (s *ReadSession) fail(err error) error {
	if err != nil && s.broken == nil {
		s.broken = err
	}
	return err
}

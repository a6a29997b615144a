package objgraph

import "reflect"

const (
	minTupleArity = 2
	maxTupleArity = 8
)

// Tuple 是元素类型在运行时才确定的定长序列，无类型目标解码元组时得到该类型。
type Tuple []any

// tupleStruct 由 TupleN 结构体实现，其字段依次为元组元素。
type tupleStruct interface {
	tupleArity() int
}

var (
	tupleType       = reflect.TypeFor[Tuple]()
	tupleStructType = reflect.TypeFor[tupleStruct]()
)

func isTupleStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.Implements(tupleStructType)
}

// Tuple2 是带类型的 2 元组。
type Tuple2[A, B any] struct {
	V1 A
	V2 B
}

func (Tuple2[A, B]) tupleArity() int { return 2 }

type Tuple3[A, B, C any] struct {
	V1 A
	V2 B
	V3 C
}

func (Tuple3[A, B, C]) tupleArity() int { return 3 }

type Tuple4[A, B, C, D any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
}

func (Tuple4[A, B, C, D]) tupleArity() int { return 4 }

type Tuple5[A, B, C, D, E any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
	V5 E
}

func (Tuple5[A, B, C, D, E]) tupleArity() int { return 5 }

type Tuple6[A, B, C, D, E, F any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
	V5 E
	V6 F
}

func (Tuple6[A, B, C, D, E, F]) tupleArity() int { return 6 }

type Tuple7[A, B, C, D, E, F, G any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
	V5 E
	V6 F
	V7 G
}

func (Tuple7[A, B, C, D, E, F, G]) tupleArity() int { return 7 }

type Tuple8[A, B, C, D, E, F, G, H any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
	V5 E
	V6 F
	V7 G
	V8 H
}

func (Tuple8[A, B, C, D, E, F, G, H]) tupleArity() int { return 8 }

package objgraph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

type DecoderSuite struct {
	suite.Suite
	reg *Registry
}

func (s *DecoderSuite) SetupTest() {
	s.reg = newRegistry()
}

func (s *DecoderSuite) decode(text string) (any, error) {
	return NewDecoder(strings.NewReader(text), s.reg).Deserialize(NewReadSession())
}

func (s *DecoderSuite) roundTrip(root any) any {
	data, err := Marshal(s.reg, root)
	s.Require().NoError(err)
	out, err := s.decode(string(data))
	s.Require().NoError(err, string(data))
	return out
}

func (s *DecoderSuite) TestRoundTripGraph() {
	in := newTown()
	out, ok := s.roundTrip(in).(*town)
	s.Require().True(ok)

	s.Equal("Riverside", out.Name)
	s.Equal(in.Tags, out.Tags)
	s.Equal(in.Bounds, out.Bounds)
	s.Equal(in.Unnamed, out.Unnamed)
	s.Require().Len(out.People, 2)

	ann, bob := out.People[0], out.People[1]
	s.Equal("Ann", ann.Name)
	s.Equal(34, ann.Age)
	s.Equal(1.68, ann.Height)
	s.True(ann.Alive)
	s.Equal(moodAngry, ann.Mood)
	s.Equal(cell{X: 3, Y: -2}, ann.At)
	s.Equal("annie", ann.nickname)
	s.Empty(ann.secret)
	s.Equal(-3, bob.Age)
	s.Equal(2.5, bob.Height)
	s.False(bob.Alive)
	s.Equal("coin", bob.Pocket)
	s.Zero(bob.Scratch)

	// 共享与环在反序列化后仍指向同一个实例。
	s.Same(ann.Home, bob.Home)
	s.Same(ann.Home, out.Places[0])
	s.Same(ann, bob.Spouse)
	s.Same(bob, ann.Spouse)
	s.Same(ann, out.Mayor)
	s.Require().Len(ann.Friends, 2)
	s.Same(bob, ann.Friends[0])
	s.Same(ann, ann.Friends[1])
	s.Equal("Mill", out.Places[1].Name)
	s.Equal(12, out.Places[1].Capacity)
	s.Nil(bob.Friends)
}

func (s *DecoderSuite) TestCycle() {
	a := &node{Name: "a"}
	a.Next = &node{Name: "b", Next: a}

	out := s.roundTrip(a).(*node)
	s.Equal("a", out.Name)
	s.Equal("b", out.Next.Name)
	s.Same(out, out.Next.Next)

	self := &node{Name: "self"}
	self.Next = self
	got := s.roundTrip(self).(*node)
	s.Same(got, got.Next)
}

func (s *DecoderSuite) TestScalars() {
	cases := []struct {
		text string
		want any
	}{
		{"-3", -3},
		{"2.5", 2.5},
		{"3.0", 3.0},
		{`"Oak Street"`, "Oak Street"},
		{`"say \"hi\"\n"`, "say \"hi\"\n"},
		{`"C:/legacy path"`, "C:/legacy path"},
		{"null", nil},
		{"True", true},
		{"False", false},
		{"18446744073709551615", uint64(18446744073709551615)},
	}
	for _, c := range cases {
		got, err := s.decode(c.text)
		s.NoError(err, c.text)
		s.Equal(c.want, got, c.text)
	}
}

func (s *DecoderSuite) TestCollections() {
	got, err := s.decode("[]")
	s.NoError(err)
	s.Equal([]any{}, got)

	got, err = s.decode("[1, 2, 3, 4, 5]")
	s.NoError(err)
	s.Equal([]any{1, 2, 3, 4, 5}, got)

	got, err = s.decode(`(1, "a", True)`)
	s.NoError(err)
	s.Equal(Tuple{1, "a", true}, got)

	var ints []int
	s.NoError(Unmarshal(s.reg, []byte("[5, 4, 3, 2, 1]"), &ints))
	s.Equal([]int{5, 4, 3, 2, 1}, ints)

	var empty []string
	s.NoError(Unmarshal(s.reg, []byte("[ ]"), &empty))
	s.NotNil(empty)
	s.Empty(empty)

	var arr [3]float32
	s.NoError(Unmarshal(s.reg, []byte("[1, 2.5, -0.25]"), &arr))
	s.Equal([3]float32{1, 2.5, -0.25}, arr)

	var typed Tuple3[int, string, bool]
	s.NoError(Unmarshal(s.reg, []byte(`(7, "x", True)`), &typed))
	s.Equal(Tuple3[int, string, bool]{V1: 7, V2: "x", V3: true}, typed)

	var nested [][]int
	s.NoError(Unmarshal(s.reg, []byte("[[1, 2], [], [3]]"), &nested))
	s.Equal([][]int{{1, 2}, {}, {3}}, nested)
}

func (s *DecoderSuite) TestTypedDecode() {
	data, err := Marshal(s.reg, &place{Name: "Mill", Capacity: 12})
	s.Require().NoError(err)

	dec := NewDecoder(bytes.NewReader(data), s.reg)
	p, err := Decode[*place](dec, NewReadSession())
	s.NoError(err)
	s.Equal(&place{Name: "Mill", Capacity: 12}, p)

	var wrong *node
	err = Unmarshal(s.reg, data, &wrong)
	s.ErrorIs(err, merr.ErrTypeMismatch)

	var notPtr place
	s.ErrorIs(Unmarshal(s.reg, data, notPtr), merr.ErrParameterInvalid)
}

func (s *DecoderSuite) TestMultipleRecords() {
	in := newTown()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, s.reg)
	wsess := NewWriteSession()
	_, err := enc.Serialize(wsess, in)
	s.Require().NoError(err)
	id, err := enc.Serialize(wsess, in.People[1])
	s.Require().NoError(err)
	s.Equal(3, id)
	_, err = enc.Serialize(wsess, []*person{in.People[0]})
	s.Require().NoError(err)
	s.True(strings.HasSuffix(buf.String(), "}\n#3\n[\n  #1\n]\n"))

	dec := NewDecoder(&buf, s.reg)
	rsess := NewReadSession()
	s.True(dec.More())
	first, err := Decode[*town](dec, rsess)
	s.Require().NoError(err)
	s.True(dec.More())
	second, err := Decode[*person](dec, rsess)
	s.Require().NoError(err)
	third, err := Decode[[]*person](dec, rsess)
	s.Require().NoError(err)
	s.False(dec.More())

	s.Same(first.People[1], second)
	s.Same(first.People[0], third[0])
	obj, ok := rsess.Lookup(3)
	s.True(ok)
	s.Same(second, obj)
	s.Equal([]int{0, 1, 2, 3, 4}, rsess.IDs())
	s.Equal(5, rsess.Len())
	s.Equal(ReadStats{Objects: 5, Backrefs: 9}, rsess.Stats())
}

func (s *DecoderSuite) TestSessionReset() {
	first := `#0{type: "graph.Node", Name: "first"}`
	second := `#0{type: "graph.Node", Name: "second"}`
	sess := NewReadSession()

	a, err := Decode[*node](NewDecoder(strings.NewReader(first), s.reg), sess)
	s.Require().NoError(err)
	s.Equal("first", a.Name)

	// 不调用 Reset 时，#0 会解析到上一个流中的对象。
	stale, err := Decode[*node](NewDecoder(strings.NewReader(second), s.reg), sess)
	s.Require().NoError(err)
	s.Same(a, stale)

	sess.Reset()
	b, err := Decode[*node](NewDecoder(strings.NewReader(second), s.reg), sess)
	s.Require().NoError(err)
	s.Equal("second", b.Name)
	s.NotSame(a, b)
}

func (s *DecoderSuite) TestErrors() {
	cases := []struct {
		name string
		text string
		want error
	}{
		{"truncated body", "#0{\n  type: \"graph.Node\",\n  Name: \"a\"", merr.ErrStreamTruncated},
		{"truncated string", `#0{type: "graph.No`, merr.ErrStreamTruncated},
		{"truncated list", "[1, 2", merr.ErrStreamTruncated},
		{"empty input", "   ", merr.ErrStreamTruncated},
		{"unknown type", `#0{type: "town.Ghost"}`, merr.ErrUnknownType},
		{"unknown field", `#0{type: "graph.Node", Colour: "red"}`, merr.ErrFieldNotFound},
		{"missing type", `#0{}`, merr.ErrFieldNotFound},
		{"type not first", `#0{Name: "a", type: "graph.Node"}`, merr.ErrUnexpectedFieldOrder},
		{"missing separator", "[1 2]", merr.ErrSyntax},
		{"bad literal", "nope", merr.ErrSyntax},
		{"bad character", "@", merr.ErrSyntax},
		{"bad number", "1.2.3", merr.ErrSyntax},
		{"missing fraction", "5.", merr.ErrSyntax},
		{"missing fraction in list", "[5., 1]", merr.ErrSyntax},
		{"missing integer part", ".5", merr.ErrSyntax},
		{"negative missing integer part", "-.5", merr.ErrSyntax},
		{"lone minus", "-", merr.ErrSyntax},
		{"minus inside", "1-2", merr.ErrSyntax},
		{"undefined backreference", `[#4]`, merr.ErrSyntax},
		{"trailing comma", "[1, ]", merr.ErrSyntax},
		{"bad escape", `"\q"`, merr.ErrSyntax},
		{"short tuple", "(1)", merr.ErrArityMismatch},
		{"long tuple", "(1, 2, 3, 4, 5, 6, 7, 8, 9)", merr.ErrArityMismatch},
		{"wrong field type", `#0{type: "town.Place", Capacity: "many"}`, merr.ErrTypeMismatch},
		{"list into int", `#0{type: "town.Place", Capacity: [1]}`, merr.ErrTypeMismatch},
		{"overflow", `#0{type: "town.Person", Age: 99999999999999999999}`, merr.ErrUnsupportedValue},
	}
	for _, c := range cases {
		_, err := s.decode(c.text)
		s.ErrorIs(err, c.want, c.name)
	}
}

func (s *DecoderSuite) TestTypedArity() {
	var pair Tuple2[int, int]
	s.ErrorIs(Unmarshal(s.reg, []byte("(1, 2, 3)"), &pair), merr.ErrArityMismatch)
	s.ErrorIs(Unmarshal(s.reg, []byte("(1)"), &pair), merr.ErrArityMismatch)

	var arr [2]int
	s.ErrorIs(Unmarshal(s.reg, []byte("[1, 2, 3]"), &arr), merr.ErrArityMismatch)
	s.ErrorIs(Unmarshal(s.reg, []byte("[1]"), &arr), merr.ErrArityMismatch)
}

func (s *DecoderSuite) TestErrorContext() {
	_, err := s.decode("[1 2]")
	s.Require().Error(err)
	s.Contains(err.Error(), "pos=1:4")

	_, err = s.decode("#0{\n  type: \"town.Person\",\n  Home: #1{\n    type: \"town.Place\",\n    Nope: 1\n  }\n}")
	s.Require().Error(err)
	s.ErrorIs(err, merr.ErrFieldNotFound)
	s.Contains(err.Error(), "#0.Home#1")

	_, err = s.decode("#0{type: \"graph.Node\", Next: #1{type: \"graph.Node\"")
	s.Require().Error(err)
	s.Contains(err.Error(), "in=#0.Next#1")
}

func (s *DecoderSuite) TestBrokenSession() {
	sess := NewReadSession()
	_, err := NewDecoder(strings.NewReader("[1"), s.reg).Deserialize(sess)
	s.ErrorIs(err, merr.ErrStreamTruncated)

	_, err = NewDecoder(strings.NewReader("1"), s.reg).Deserialize(sess)
	s.ErrorIs(err, merr.ErrSessionBroken)

	sess.Reset()
	got, err := NewDecoder(strings.NewReader("1"), s.reg).Deserialize(sess)
	s.NoError(err)
	s.Equal(1, got)
}

func (s *DecoderSuite) TestTextCodecs() {
	var m mood
	s.NoError(Unmarshal(s.reg, []byte(`"angry"`), &m))
	s.Equal(moodAngry, m)
	s.Error(Unmarshal(s.reg, []byte(`"sleepy"`), &m))
	s.ErrorIs(Unmarshal(s.reg, []byte(`3`), &m), merr.ErrTypeMismatch)

	var c cell
	s.NoError(Unmarshal(s.reg, []byte(`"4,5"`), &c))
	s.Equal(cell{X: 4, Y: 5}, c)
	s.NoError(Unmarshal(s.reg, []byte(`null`), &c))
	s.Equal(cell{}, c)
}

func (s *DecoderSuite) TestParseValue() {
	a := &node{Name: "a"}
	a.Next = &node{Name: "b", Next: a}
	data, err := Marshal(s.reg, a)
	s.Require().NoError(err)

	sess := NewReadSession()
	v, err := NewDecoder(bytes.NewReader(data), s.reg).ParseValue(sess)
	s.Require().NoError(err)
	s.Equal(`#0{type: "graph.Node", Name: "a", Next: #1{type: "graph.Node", Name: "b", Next: #0}}`, v.String())

	s.Equal(KindObject, v.Kind)
	name, ok := v.Field("Name")
	s.True(ok)
	s.Equal(StringValue("a"), name)

	var bodies, backrefs int
	v.Walk(func(v Value) bool {
		if v.Kind == KindObject {
			if v.Object.Backref {
				backrefs++
			} else {
				bodies++
			}
		}
		return true
	})
	s.Equal(2, bodies)
	s.Equal(1, backrefs)
	s.Equal([]int{0, 1}, sess.IDs())
	_, found := sess.Lookup(0)
	s.False(found)

	// 不实例化时不检查类型注册，未知类型也能解析。
	v, err = NewDecoder(strings.NewReader(`(#0{type: "x.Y", z: [1, 2.50]}, ())`), s.reg).ParseValue(NewReadSession())
	s.Require().NoError(err)
	s.Equal(`(#0{type: "x.Y", z: [1, 2.50]}, ())`, v.String())
}

func TestDecoder(t *testing.T) {
	suite.Run(t, new(DecoderSuite))
}

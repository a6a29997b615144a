package objgraph

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/simsave/pkg/util/merr"
)

type EncoderSuite struct {
	suite.Suite
	reg *Registry
}

func (s *EncoderSuite) SetupTest() {
	s.reg = newRegistry()
}

func (s *EncoderSuite) marshal(roots ...any) string {
	data, err := Marshal(s.reg, roots...)
	s.Require().NoError(err)
	return string(data)
}

func (s *EncoderSuite) TestObjectLayout() {
	out := s.marshal(&place{Name: "Oak Street", Capacity: 3})
	s.Equal("#0{\n  type: \"town.Place\",\n  Name: \"Oak Street\",\n  Capacity: 3\n}\n", out)
}

func (s *EncoderSuite) TestCustomIndent() {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, s.reg, WithIndent("\t"))
	_, err := enc.Serialize(NewWriteSession(), &place{Name: "Mill"})
	s.Require().NoError(err)
	s.Equal("#0{\n\ttype: \"town.Place\",\n\tName: \"Mill\",\n\tCapacity: 0\n}\n", buf.String())
	s.Equal(int64(buf.Len()), enc.Written())
}

func (s *EncoderSuite) TestCycle() {
	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b

	expected := strings.Join([]string{
		"#0{",
		"  type: \"graph.Node\",",
		"  Name: \"a\",",
		"  Next: #1{",
		"    type: \"graph.Node\",",
		"    Name: \"b\",",
		"    Next: #0",
		"  }",
		"}",
		"",
	}, "\n")
	s.Equal(expected, s.marshal(a))
}

func (s *EncoderSuite) TestBackreferenceCompactness() {
	out := s.marshal(newTown())
	s.Equal(5, strings.Count(out, "type: "))
	for _, id := range []string{"#0{", "#1{", "#2{", "#3{", "#4{"} {
		s.Equal(1, strings.Count(out, id), id)
	}
}

func (s *EncoderSuite) TestRootIDs() {
	sess := NewWriteSession()
	enc := NewEncoder(&bytes.Buffer{}, s.reg)

	id, err := enc.Serialize(sess, 42)
	s.NoError(err)
	s.Equal(NoID, id)

	p := &place{Name: "Mill"}
	id, err = enc.Serialize(sess, p)
	s.NoError(err)
	s.Equal(0, id)

	id, err = enc.Serialize(sess, p)
	s.NoError(err)
	s.Equal(0, id)

	got, ok := sess.IDOf(p)
	s.True(ok)
	s.Equal(0, got)
	_, ok = sess.IDOf(&place{})
	s.False(ok)
	s.Equal(WriteStats{Objects: 1, Backrefs: 1}, sess.Stats())
}

func (s *EncoderSuite) TestScalars() {
	cases := []struct {
		in   any
		want string
	}{
		{-3, "-3"},
		{2.5, "2.5"},
		{3.0, "3.0"},
		{float32(0.1), "0.1"},
		{uint8(200), "200"},
		{"Oak Street", `"Oak Street"`},
		{`say "hi"` + "\n", `"say \"hi\"\n"`},
		{nil, "null"},
		{true, "True"},
		{false, "False"},
		{(*place)(nil), "null"},
		{[]int(nil), "null"},
		{moodCalm, `"calm"`},
		{cell{X: 1, Y: 2}, `"1,2"`},
	}
	for _, c := range cases {
		s.Equal(c.want+"\n", s.marshal(c.in), "%#v", c.in)
	}
}

func (s *EncoderSuite) TestCollections() {
	s.Equal("[]\n", s.marshal([]int{}))
	s.Equal("[1, 2, 3, 4, 5]\n", s.marshal([]int{1, 2, 3, 4, 5}))
	s.Equal("[1.5, 2.0]\n", s.marshal([2]float64{1.5, 2}))
	s.Equal("(1, \"a\", True)\n", s.marshal(Tuple{1, "a", true}))
	s.Equal("(7, \"x\", False)\n", s.marshal(Tuple3[int, string, bool]{V1: 7, V2: "x"}))
	s.Equal("[\n  [1, 2],\n  []\n]\n", s.marshal([][]int{{1, 2}, {}}))
}

func (s *EncoderSuite) TestUnsupported() {
	_, err := Marshal(s.reg, map[string]int{"a": 1})
	s.ErrorIs(err, merr.ErrUnsupportedValue)

	_, err = Marshal(s.reg, math.NaN())
	s.ErrorIs(err, merr.ErrUnsupportedValue)

	_, err = Marshal(s.reg, math.Inf(-1))
	s.ErrorIs(err, merr.ErrUnsupportedValue)

	_, err = Marshal(s.reg, place{Name: "by value"})
	s.ErrorIs(err, merr.ErrUnsupportedValue)

	_, err = Marshal(s.reg, Tuple{1})
	s.ErrorIs(err, merr.ErrArityMismatch)

	n := 3
	_, err = Marshal(s.reg, &n)
	s.ErrorIs(err, merr.ErrUnsupportedValue)
}

func (s *EncoderSuite) TestUnregisteredType() {
	_, err := Marshal(s.reg, &entity{ID: 1})
	s.ErrorIs(err, merr.ErrUnknownType)

	// 嵌套在已注册对象里时，错误需要带上所在位置。
	p := &person{Name: "Ann", Pocket: &entity{ID: 2}}
	_, err = Marshal(s.reg, p)
	s.ErrorIs(err, merr.ErrUnknownType)
	s.Contains(err.Error(), "#0.Pocket")
}

func (s *EncoderSuite) TestZeroSizeObjects() {
	s.Require().NoError(RegisterAs[marker](s.reg, "town.Marker"))
	s.Require().NoError(RegisterAs[flagged](s.reg, "town.Flagged"))

	in := &flagged{A: &marker{}, B: &marker{}}
	in.Tags = []*marker{in.A, in.B}
	out := s.marshal(in)
	s.Equal(4, strings.Count(out, `type: "town.Marker"`))
	for _, id := range []string{"#1{", "#2{", "#3{", "#4{"} {
		s.Contains(out, id)
	}

	// 读回的零大小实例可能地址相同，只能按 ID 区分。
	rs := NewReadSession()
	var got *flagged
	s.Require().NoError(NewDecoder(strings.NewReader(out), s.reg).DeserializeInto(rs, &got))
	s.Equal([]int{0, 1, 2, 3, 4}, rs.IDs())
	s.Equal(ReadStats{Objects: 5}, rs.Stats())
	s.Len(got.Tags, 2)

	sess := NewWriteSession()
	_, err := NewEncoder(&bytes.Buffer{}, s.reg).Serialize(sess, in)
	s.Require().NoError(err)
	s.Equal(5, sess.Len())
	_, ok := sess.IDOf(in.A)
	s.False(ok)
	id, ok := sess.IDOf(in)
	s.True(ok)
	s.Equal(0, id)
}

func (s *EncoderSuite) TestFailedRecordLeavesNoOutput() {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, s.reg)
	sess := NewWriteSession()
	_, err := enc.Serialize(sess, &place{Name: "Mill"})
	s.Require().NoError(err)
	first := buf.String()

	big := make([]any, 0, 2001)
	for i := 0; i < 2000; i++ {
		big = append(big, "filler text that pushes the record past any write buffer")
	}
	big = append(big, map[string]int{"late": 1})
	_, err = enc.Serialize(NewWriteSession(), big)
	s.ErrorIs(err, merr.ErrUnsupportedValue)

	s.Equal(first, buf.String())
	s.Equal(int64(buf.Len()), enc.Written())
}

func (s *EncoderSuite) TestBrokenSession() {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, s.reg)
	sess := NewWriteSession()

	_, err := enc.Serialize(sess, map[int]int{})
	s.Error(err)
	s.Error(sess.Err())

	_, err = enc.Serialize(sess, 1)
	s.ErrorIs(err, merr.ErrSessionBroken)

	oldID := sess.ID()
	sess.Reset()
	s.NotEqual(oldID, sess.ID())
	s.NoError(sess.Err())
	_, err = enc.Serialize(sess, 1)
	s.NoError(err)
	s.Equal("1\n", buf.String())
}

func (s *EncoderSuite) TestFieldSelection() {
	out := s.marshal(&person{Name: "Ann", nickname: "annie", secret: "hidden", Scratch: 5})
	s.Contains(out, `nick: "annie"`)
	s.NotContains(out, "hidden")
	s.NotContains(out, "Scratch")

	out = s.marshal(&building{Floors: 2, entity: entity{ID: 7, Name: "inner"}, Name: "Hall"})
	s.Equal("#0{\n  type: \"town.Building\",\n  Floors: 2,\n  Name: \"Hall\",\n  ID: 7\n}\n", out)
}

func TestEncoder(t *testing.T) {
	suite.Run(t, new(EncoderSuite))
}

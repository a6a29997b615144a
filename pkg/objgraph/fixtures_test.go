package objgraph

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type node struct {
	Name string
	Next *node
}

type place struct {
	Name     string
	Capacity int
}

type mood int

const (
	moodCalm mood = iota
	moodAngry
)

func (m mood) MarshalText() ([]byte, error) {
	switch m {
	case moodCalm:
		return []byte("calm"), nil
	case moodAngry:
		return []byte("angry"), nil
	}
	return nil, errors.Newf("unknown mood %d", int(m))
}

func (m *mood) UnmarshalText(b []byte) error {
	switch string(b) {
	case "calm":
		*m = moodCalm
	case "angry":
		*m = moodAngry
	default:
		return errors.Newf("unknown mood %q", b)
	}
	return nil
}

type cell struct {
	X, Y int
}

func writeCell(c cell) (string, error) {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y), nil
}

func parseCell(s string) (cell, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return cell{}, errors.Newf("bad cell %q", s)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return cell{}, err
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return cell{}, err
	}
	return cell{X: x, Y: y}, nil
}

type person struct {
	Name    string
	Age     int
	Height  float64
	Alive   bool
	Home    *place
	Spouse  *person
	Friends []*person
	Mood    mood
	At      cell
	Pocket  any

	nickname string `save:"nick"`
	secret   string
	Scratch  int `save:"-"`
}

type town struct {
	Name    string
	People  []*person
	Places  [2]*place
	Bounds  Tuple2[int, int]
	Tags    []string
	Mayor   *person
	Unnamed []any
}

type entity struct {
	ID   int
	Name string
}

type building struct {
	Floors int
	entity
	Name string
}

type withMap struct {
	Index map[string]int
}

// marker 没有字段，所有实例可能共享同一地址。
type marker struct{}

type flagged struct {
	A, B *marker
	Tags []*marker
}

type badName struct {
	Kind string `save:"type"`
}

func newRegistry() *Registry {
	reg := NewRegistry()
	DeclareValue(reg, writeCell, parseCell)
	for _, err := range []error{
		RegisterAs[node](reg, "graph.Node"),
		RegisterAs[place](reg, "town.Place"),
		RegisterAs[person](reg, "town.Person"),
		RegisterAs[town](reg, "town.Town"),
		RegisterAs[building](reg, "town.Building"),
	} {
		if err != nil {
			panic(err)
		}
	}
	return reg
}

// newTown builds a graph with shared places and a spouse cycle.
func newTown() *town {
	home := &place{Name: "Oak Street", Capacity: 4}
	mill := &place{Name: "Mill", Capacity: 12}
	ann := &person{Name: "Ann", Age: 34, Height: 1.68, Alive: true, Home: home, Mood: moodAngry, At: cell{X: 3, Y: -2}, nickname: "annie", secret: "x"}
	bob := &person{Name: "Bob", Age: -3, Height: 2.5, Home: home, Pocket: "coin", Scratch: 9}
	ann.Spouse, bob.Spouse = bob, ann
	ann.Friends = []*person{bob, ann}
	return &town{
		Name:    "Riverside",
		People:  []*person{ann, bob},
		Places:  [2]*place{home, mill},
		Bounds:  Tuple2[int, int]{V1: 40, V2: 30},
		Tags:    []string{"river", "quiet"},
		Mayor:   ann,
		Unnamed: []any{1, 2.5, "three", true, nil},
	}
}

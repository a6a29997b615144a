package valuecodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/simsave/pkg/objgraph"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

type traits [5]float64

type plot struct {
	Origin  GridPoint
	Tint    Color
	Planted Date
	Soil    traits
	Corners []GridPoint
}

func TestGridPoint(t *testing.T) {
	p, err := ParseGridPoint("3,-7")
	require.NoError(t, err)
	assert.Equal(t, GridPoint{X: 3, Y: -7}, p)
	assert.Equal(t, "3,-7", p.String())

	_, err = ParseGridPoint("3")
	assert.ErrorIs(t, err, merr.ErrArityMismatch)
	_, err = ParseGridPoint("a,b")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestColor(t *testing.T) {
	c, err := ParseColor("#10A0FF80")
	require.NoError(t, err)
	assert.Equal(t, Color{R: 0x10, G: 0xA0, B: 0xFF, A: 0x80}, c)
	assert.Equal(t, "#10A0FF80", c.String())

	c, err = ParseColor("#000000")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), c.A)

	for _, bad := range []string{"10A0FF", "#12345", "#GG0000"} {
		_, err = ParseColor(bad)
		assert.ErrorIs(t, err, merr.ErrParameterInvalid, bad)
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("1887-03-09")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 1887, Month: time.March, Day: 9}, d)
	assert.Equal(t, "1887-03-09", d.String())

	_, err = ParseDate("1887-13-01")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestFloats(t *testing.T) {
	assert.Equal(t, "0.5 -1 3.25", FormatFloats([]float64{0.5, -1, 3.25}))

	got, err := ParseFloats(" 0.5  -1 3.25 ", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1, 3.25}, got)

	_, err = ParseFloats("1 2", 3)
	assert.ErrorIs(t, err, merr.ErrArityMismatch)
}

func TestRoundTripThroughRegistry(t *testing.T) {
	reg := objgraph.NewRegistry()
	DeclareDefaults(reg)
	require.NoError(t, DeclareFloatArray[traits](reg))
	require.NoError(t, objgraph.RegisterAs[plot](reg, "farm.Plot"))

	in := &plot{
		Origin:  GridPoint{X: 4, Y: 9},
		Tint:    Color{R: 1, G: 2, B: 3, A: 4},
		Planted: Date{Year: 1890, Month: time.May, Day: 1},
		Soil:    traits{0.1, 0.2, 0.3, 0.4, 0.5},
		Corners: []GridPoint{{0, 0}, {1, 1}},
	}
	data, err := objgraph.Marshal(reg, in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `Origin: "4,9"`)
	assert.Contains(t, string(data), `Tint: "#01020304"`)
	assert.Contains(t, string(data), `Soil: "0.1 0.2 0.3 0.4 0.5"`)
	assert.Contains(t, string(data), `Corners: ["0,0", "1,1"]`)

	var out *plot
	require.NoError(t, objgraph.Unmarshal(reg, data, &out))
	assert.Equal(t, in, out)

	bad := []byte(`#0{type: "farm.Plot", Soil: "1 2 3"}`)
	assert.ErrorIs(t, objgraph.Unmarshal(reg, bad, &out), merr.ErrArityMismatch)
}

func TestDeclareFloatArrayRejects(t *testing.T) {
	reg := objgraph.NewRegistry()
	assert.ErrorIs(t, DeclareFloatArray[[]float64](reg), merr.ErrParameterInvalid)
	assert.ErrorIs(t, DeclareFloatArray[[3]int](reg), merr.ErrParameterInvalid)
}

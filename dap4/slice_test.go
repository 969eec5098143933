package dap4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceCount(t *testing.T) {
	tests := []struct {
		s    Slice
		want int64
		str  string
	}{
		{Whole(5), 5, "[0:4]"},
		{Point(3), 1, "[3]"},
		{Slice{Start: 0, Stop: 10, Stride: 3}, 4, "[0:3:9]"},
		{Slice{Start: 2, Stop: 2, Stride: 1}, 0, "[2:1]"},
		{Slice{Start: 1, Stop: 6, Stride: 2}, 3, "[1:2:5]"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Count())
			assert.Equal(t, tt.str, tt.s.String())
		})
	}
}

func TestNewSliceRejects(t *testing.T) {
	_, err := NewSlice(0, 4, 0)
	assert.Error(t, err)
	_, err = NewSlice(-1, 4, 1)
	assert.Error(t, err)
	_, err = NewSlice(5, 4, 1)
	assert.Error(t, err)
	s, err := NewSlice(1, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Count())
}

func TestCheckSlices(t *testing.T) {
	shape := []int64{2, 3}
	assert.NoError(t, checkSlices([]Slice{Whole(2), Whole(3)}, shape))
	assert.Error(t, checkSlices([]Slice{Whole(2)}, shape), "rank mismatch")
	assert.Error(t, checkSlices([]Slice{Whole(3), Whole(3)}, shape), "past the end")
	assert.Error(t, checkSlices([]Slice{Whole(2), {Start: 0, Stop: 3, Stride: 0}}, shape), "zero stride")
	assert.NoError(t, checkSlices(nil, nil), "scalar")
	assert.NoError(t, checkSlices([]Slice{{Start: 2, Stop: 2, Stride: 1}, Whole(3)}, shape), "empty at the end")
	assert.Error(t, checkSlices([]Slice{{Start: 3, Stop: 3, Stride: 1}, Whole(3)}, shape), "empty past the end")
}

func TestIndexRoundTrip(t *testing.T) {
	dims := []int64{2, 3, 4}
	for off := int64(0); off < 24; off++ {
		ix := IndexOf(off, dims)
		assert.Equal(t, off, ix.Offset())
	}
	assert.Equal(t, []int64{1, 1}, IndexOf(4, []int64{2, 3}).Indices)
	assert.Equal(t, "[1][2]", IndexOf(5, []int64{2, 3}).String())
}

func TestOffsets(t *testing.T) {
	got, err := Offsets([]Slice{{Start: 0, Stop: 2, Stride: 1}, {Start: 0, Stop: 3, Stride: 2}}, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2, 3, 5}, got)

	got, err = Offsets(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, got)

	got, err = Offsets([]Slice{{Start: 1, Stop: 1, Stride: 1}}, []int64{3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGather(t *testing.T) {
	src := []int32{1, 2, 3, 4, 5, 6}
	shape := []int64{2, 3}

	tests := []struct {
		name   string
		slices []Slice
		want   []int32
	}{
		{"all", Wholes(shape), src},
		{"row", []Slice{Point(1), Whole(3)}, []int32{4, 5, 6}},
		{"column", []Slice{Whole(2), Point(2)}, []int32{3, 6}},
		{"strided", []Slice{Whole(2), {Start: 0, Stop: 3, Stride: 2}}, []int32{1, 3, 4, 6}},
		{"empty", []Slice{{Start: 1, Stop: 1, Stride: 1}, Whole(3)}, []int32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Gather(src, shape, tt.slices)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// Gather agrees with Offsets.
			offs, err := Offsets(tt.slices, shape)
			require.NoError(t, err)
			for i, off := range offs {
				assert.Equal(t, src[off], got.([]int32)[i])
			}
		})
	}

	got, err := Gather([]string{"only"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got)

	_, err = Gather(src, []int64{3, 3}, Wholes([]int64{3, 3}))
	assert.Error(t, err, "source too short")
	_, err = Gather(7, nil, nil)
	assert.Error(t, err)
}

func TestParseSlices(t *testing.T) {
	shape := []int64{4, 10}
	got, err := ParseSlices("[1][0:2:9]", shape)
	require.NoError(t, err)
	assert.Equal(t, []Slice{Point(1), {Start: 0, Stop: 10, Stride: 2}}, got)

	got, err = ParseSlices("[][2:3]", shape)
	require.NoError(t, err)
	assert.Equal(t, []Slice{Whole(4), {Start: 2, Stop: 4, Stride: 1}}, got)

	got, err = ParseSlices("", shape)
	require.NoError(t, err)
	assert.Equal(t, Wholes(shape), got)

	for _, bad := range []string{"[1]", "[a][1]", "[1][2][3]", "1][2]", "[1:2:3:4][1]", "[0:1:0][1"} {
		_, err := ParseSlices(bad, shape)
		assert.Error(t, err, bad)
	}
}

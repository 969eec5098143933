package nc4dsp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name   string
		values interface{}
		char   bool
		typ    dmr.AtomicType
		shape  []int64
		flat   interface{}
	}{
		{"scalar", float64(2.5), false, dmr.Float64, nil, []float64{2.5}},
		{"vector", []int16{1, 2, 3}, false, dmr.Int16, []int64{3}, []int16{1, 2, 3}},
		{"grid", [][]int32{{1, 2, 3}, {4, 5, 6}}, false, dmr.Int32, []int64{2, 3}, []int32{1, 2, 3, 4, 5, 6}},
		{"unsigned", []uint16{1, 65535}, false, dmr.UInt16, []int64{2}, []int16{1, -1}},
		{"strings", []string{"a", "bc"}, false, dmr.String, []int64{2}, []string{"a", "bc"}},
		{"char row", "alpha", true, dmr.Char, []int64{5}, []byte("alpha")},
		{"char rows", []string{"ab", "cd"}, true, dmr.Char, []int64{2, 2}, []byte("abcd")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, shape, flat, err := flatten(tt.values, tt.char)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, tt.flat, flat)
		})
	}

	for name, values := range map[string]interface{}{
		"ragged":      [][]int32{{1, 2}, {3}},
		"ragged char": []string{"ab", "c"},
		"struct":      []struct{ A int }{{1}},
		"nil":         nil,
	} {
		_, _, _, err := flatten(values, name == "ragged char")
		assert.Error(t, err, name)
	}
}

func TestDimensions(t *testing.T) {
	ds := dmr.NewDataset("d")
	root := ds.Root()
	x := root.AddDimension("x", 2)
	sub := root.AddGroup("g")

	dims := dimensions(sub, []string{"x", "y"}, []int64{2, 4})
	assert.Same(t, x, dims[0], "reused from the enclosing group")
	assert.Equal(t, "/g/y", dims[1].FQN(), "declared where first used")

	dims = dimensions(sub, []string{"x"}, []int64{5})
	assert.False(t, dims[0].Shared(), "size disagrees with /x")

	dims = dimensions(sub, nil, []int64{3})
	assert.False(t, dims[0].Shared())
}

func TestAttribute(t *testing.T) {
	a, err := attribute("units", "K")
	require.NoError(t, err)
	assert.Equal(t, dmr.Attribute{Name: "units", Type: dmr.String, Values: []string{"K"}}, a)

	a, err = attribute("range", []float32{-1.5, 2})
	require.NoError(t, err)
	assert.Equal(t, dmr.Attribute{Name: "range", Type: dmr.Float32, Values: []string{"-1.5", "2"}}, a)

	_, err = attribute("bad", struct{}{})
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	dir := t.TempDir()
	hdf := filepath.Join(dir, "data.nc")
	require.NoError(t, os.WriteFile(hdf, append([]byte(nil), hdf5Magic...), 0o644))
	classic := filepath.Join(dir, "classic.nc")
	require.NoError(t, os.WriteFile(classic, []byte("CDF\x01"), 0o644))

	assert.True(t, Match(hdf, nil))
	assert.False(t, Match(classic, nil))
	assert.True(t, Match("/nowhere/x.h5", nil))
	assert.True(t, Match("/nowhere/x.NC4", nil))
	assert.False(t, Match("mem://x", nil))
	assert.True(t, Match(classic, dap4.Params{ParamFormat: "nc4"}))
}

func writeClassic(t *testing.T, path string) {
	t.Helper()
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)

	attrs, err := util.NewOrderedMap([]string{"units"}, map[string]interface{}{"units": "K"})
	require.NoError(t, err)
	require.NoError(t, cw.AddVar("temp", api.Variable{
		Values:     [][]int32{{1, 2, 3}, {4, 5, 6}},
		Dimensions: []string{"x", "y"},
		Attributes: attrs,
	}))
	require.NoError(t, cw.AddVar("lat", api.Variable{
		Values:     []float64{45, 46},
		Dimensions: []string{"x"},
	}))
	require.NoError(t, cw.Close())
}

func TestReadClassicFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	writeClassic(t, path)

	s := New()
	require.NoError(t, s.Open(path))
	defer s.Close()

	ds, err := s.DMR()
	require.NoError(t, err)
	assert.Equal(t, "grid", ds.Name())
	temp := ds.Find("/temp")
	require.NotNil(t, temp)
	assert.Equal(t, []int64{2, 3}, temp.Shape())
	assert.Same(t, temp.Dimensions()[0], ds.Find("/lat").Dimensions()[0])
	require.Len(t, temp.Attributes(), 1)
	assert.Equal(t, []string{"K"}, temp.Attributes()[0].Values)

	c, err := s.VariableData(temp)
	require.NoError(t, err)
	got, err := c.Read([]dap4.Slice{dap4.Whole(2), {Start: 1, Stop: 3, Stride: 1}})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 3, 5, 6}, got)

	v, err := c.ReadIndex(dap4.IndexOf(4, temp.Shape()))
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)
}

func TestCoordinateVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coords.nc")
	cw, err := cdf.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, cw.AddVar("x", api.Variable{
		Values:     []float64{10, 20},
		Dimensions: []string{"x"},
	}))
	require.NoError(t, cw.AddVar("temp", api.Variable{
		Values:     [][]int32{{1, 2, 3}, {4, 5, 6}},
		Dimensions: []string{"x", "y"},
	}))
	require.NoError(t, cw.Close())

	s := New()
	require.NoError(t, s.Open(path))
	defer s.Close()

	ds, err := s.DMR()
	require.NoError(t, err)
	x := ds.Find("/x")
	require.NotNil(t, x)
	require.NotNil(t, ds.Dimension("x"))
	assert.Same(t, ds.Dimension("x"), x.Dimensions()[0])
	assert.Same(t, ds.Dimension("x"), ds.Find("/temp").Dimensions()[0])

	c, err := s.VariableData(x)
	require.NoError(t, err)
	got, err := c.Read([]dap4.Slice{dap4.Whole(2)})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, got)
}

func TestOpenMissing(t *testing.T) {
	s := New()
	err := s.Open(filepath.Join(t.TempDir(), "missing.h5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, dap4.ErrDataAccess))
	assert.Equal(t, dap4.StateClosed, s.State())
}

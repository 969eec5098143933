package printer

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
	"github.com/robert-malhotra/go-dap4/dsp/memdsp"
)

func open(t *testing.T, location string, opts ...dap4.Option) *dap4.DataDataset {
	t.Helper()
	c := memdsp.NewCatalog()
	testdata := filepath.Join("..", "..", "dsp", "memdsp", "testdata")
	require.NoError(t, memdsp.LoadFiles(c,
		filepath.Join(testdata, "grid1.yaml"),
		filepath.Join(testdata, "obs.yaml"),
	))
	s := memdsp.New(c, opts...)
	require.NoError(t, s.Open(location))
	t.Cleanup(func() { s.Close() })
	dd, err := dap4.NewDataDataset(s)
	require.NoError(t, err)
	return dd
}

func TestPrintData(t *testing.T) {
	dd := open(t, "mem://grid1", dap4.WithChecksumMode(dap4.ChecksumNone))

	var buf bytes.Buffer
	require.NoError(t, New(&buf, WithColumns(4)).PrintData(dd))
	assert.Equal(t, `<data>
<Int32 name="temp">
  1, 2, 3, 4
  5, 6
</Int32>
</data>
`, buf.String())
}

func TestPrintCompounds(t *testing.T) {
	dd := open(t, "mem://obs", dap4.WithChecksumMode(dap4.ChecksumNone))

	var buf bytes.Buffer
	require.NoError(t, New(&buf).PrintData(dd))
	out := buf.String()

	for _, want := range []string{
		"<UInt8 name=\"flags\">\n  0, 1, 128, 255\n</UInt8>",
		"<String name=\"label\">\n  \"surface\"\n</String>",
		"<Structure name=\"stations\" indices=\"[1]\">\n  <Int16 name=\"id\">\n    20\n  </Int16>",
		"<Sequence name=\"track\">\n  <Record>\n    <Int64 name=\"time\">\n      100\n",
		"<Sequence name=\"casts\" indices=\"[1]\">\n</Sequence>",
		"<Structure name=\"origin\">\n  <Float64 name=\"lat\">\n    45\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 5, strings.Count(out, "<Record>"), "three track records and two casts records")
	assert.NotContains(t, out, "Checksum")
}

func TestPrintChecksums(t *testing.T) {
	dd := open(t, "mem://grid1", dap4.WithChecksumMode(dap4.ChecksumAll))

	var buf bytes.Buffer
	require.NoError(t, New(&buf).Print(dd))
	out := buf.String()

	sum, ok, err := dd.Checksum(dd.Schema().Find("/temp"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, out, "<Dataset name=\"grid1\"")
	assert.Contains(t, out, "<Checksum dmr=\"0x")
	assert.Contains(t, out, fmt.Sprintf("<Checksum name=\"temp\" crc32=\"0x%08x\"/>", sum))
}

func TestPrintChecksumAlgorithm(t *testing.T) {
	dd := open(t, "mem://grid1",
		dap4.WithChecksumMode(dap4.ChecksumDAP), dap4.WithChecksumAlgorithm(dap4.AlgorithmFletcher32))

	var buf bytes.Buffer
	require.NoError(t, New(&buf).PrintData(dd))

	sum, ok, err := dd.Checksum(dd.Schema().Find("/temp"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, buf.String(), fmt.Sprintf("<Checksum name=\"temp\" fletcher32=\"0x%08x\"/>", sum))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteErrorIsSticky(t *testing.T) {
	dd := open(t, "mem://grid1", dap4.WithChecksumMode(dap4.ChecksumNone))
	p := New(failingWriter{})
	assert.EqualError(t, p.PrintData(dd), "disk full")
	assert.EqualError(t, p.PrintData(dd), "disk full")
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value interface{}
		typ   dmr.AtomicType
		want  string
	}{
		{int8(-1), dmr.Int8, "-1"},
		{int8(-1), dmr.UInt8, "255"},
		{int16(-1), dmr.UInt16, "65535"},
		{int32(-2), dmr.UInt32, "4294967294"},
		{int64(-1), dmr.UInt64, "18446744073709551615"},
		{float32(1.5), dmr.Float32, "1.5"},
		{float64(-120), dmr.Float64, "-120"},
		{byte('a'), dmr.Char, "'a'"},
		{"x\"y", dmr.String, `"x\"y"`},
		{[]byte{0xca, 0xfe}, dmr.Opaque, "0xcafe"},
		{nil, dmr.Int32, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ValueString(tt.value, tt.typ))
		})
	}
}

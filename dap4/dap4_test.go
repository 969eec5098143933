package dap4_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
	"github.com/robert-malhotra/go-dap4/dsp/memdsp"
)

func fixtures(t *testing.T) *memdsp.Catalog {
	t.Helper()
	c := memdsp.NewCatalog()
	require.NoError(t, memdsp.LoadFiles(c,
		filepath.Join("..", "dsp", "memdsp", "testdata", "grid1.yaml"),
		filepath.Join("..", "dsp", "memdsp", "testdata", "obs.yaml"),
	))
	return c
}

func openSession(t *testing.T, c *memdsp.Catalog, location string, opts ...dap4.Option) dap4.DSP {
	t.Helper()
	s := memdsp.New(c, opts...)
	require.NoError(t, s.Open(location))
	t.Cleanup(func() { s.Close() })
	return s
}

func rootCursor(t *testing.T, s dap4.DSP, fqn string) *dap4.Cursor {
	t.Helper()
	ds, err := s.DMR()
	require.NoError(t, err)
	v := ds.Find(fqn)
	require.NotNil(t, v, fqn)
	c, err := s.VariableData(v)
	require.NoError(t, err)
	return c
}

func TestGridEndToEnd(t *testing.T) {
	reg := dap4.NewRegistry(nil)
	memdsp.Register(reg, fixtures(t), dap4.Last)

	s, err := reg.Open("mem://grid1", nil)
	require.NoError(t, err)
	defer s.Close()

	ds, err := s.DMR()
	require.NoError(t, err)
	vars := ds.TopVariables()
	require.Len(t, vars, 1)
	temp := vars[0]
	assert.Equal(t, "temp", temp.Name())
	assert.Equal(t, dmr.SortAtomic, temp.Sort())
	assert.Equal(t, []int64{2, 3}, temp.Shape())

	c, err := s.VariableData(temp)
	require.NoError(t, err)
	assert.Equal(t, dap4.SchemeAtomic, c.Scheme())

	all, err := c.Read([]dap4.Slice{{Start: 0, Stop: 2, Stride: 1}, {Start: 0, Stop: 3, Stride: 1}})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, all)

	v, err := c.ReadIndex(dap4.IndexOf(4, temp.Shape()))
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)

	again, err := s.VariableData(temp)
	require.NoError(t, err)
	assert.Same(t, c, again, "root cursors are cached per variable")
}

func TestCursorBounds(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://grid1")
	c := rootCursor(t, s, "/temp")

	tests := []struct {
		name   string
		slices []dap4.Slice
	}{
		{"too few slices", []dap4.Slice{dap4.Whole(2)}},
		{"too many slices", []dap4.Slice{dap4.Whole(2), dap4.Whole(3), dap4.Whole(1)}},
		{"past the end", []dap4.Slice{dap4.Whole(3), dap4.Whole(3)}},
		{"negative start", []dap4.Slice{{Start: -1, Stop: 1, Stride: 1}, dap4.Whole(3)}},
		{"zero stride", []dap4.Slice{{Start: 0, Stop: 2, Stride: 0}, dap4.Whole(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Read(tt.slices)
			require.Error(t, err)
			assert.True(t, errors.Is(err, dap4.ErrOutOfRange), "got %v", err)
		})
	}

	_, err := c.ReadIndex(dap4.Index{Indices: []int64{2, 0}})
	assert.True(t, errors.Is(err, dap4.ErrOutOfRange))
	_, err = c.ReadIndex(dap4.Index{Indices: []int64{0}})
	assert.True(t, errors.Is(err, dap4.ErrOutOfRange))

	dd, err := dap4.NewDataDataset(s)
	require.NoError(t, err)
	dv, err := dd.Find("/temp")
	require.NoError(t, err)
	_, err = dv.(*dap4.DataAtomic).ReadAt(6)
	assert.True(t, errors.Is(err, dap4.ErrOutOfRange))
}

func TestAtomicReadDestination(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://grid1")
	dd, err := dap4.NewDataDataset(s)
	require.NoError(t, err)
	dv, err := dd.Find("/temp")
	require.NoError(t, err)
	a := dv.(*dap4.DataAtomic)
	row := []dap4.Slice{dap4.Point(1), dap4.Whole(3)}

	dst := make([]int32, 5)
	n, err := a.Read(row, dst, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int32{0, 0, 4, 5, 6}, dst)

	_, err = a.Read(row, make([]int32, 5), 3)
	assert.True(t, errors.Is(err, dap4.ErrOutOfRange), "got %v", err)

	_, err = a.Read(row, make([]float64, 5), 0)
	assert.True(t, errors.Is(err, dap4.ErrSchema), "got %v", err)
	assert.False(t, errors.Is(err, dap4.ErrOutOfRange))

	_, err = a.Read(row, "not a slice", 0)
	assert.True(t, errors.Is(err, dap4.ErrSchema), "got %v", err)
}

// schemeCursors returns one cursor of every scheme.
func schemeCursors(t *testing.T, s dap4.DSP) map[dap4.Scheme]*dap4.Cursor {
	t.Helper()
	track := rootCursor(t, s, "/track")
	rec, err := track.Record(0)
	require.NoError(t, err)
	return map[dap4.Scheme]*dap4.Cursor{
		dap4.SchemeAtomic:      rootCursor(t, s, "/flags"),
		dap4.SchemeStructure:   rootCursor(t, s, "/meta/origin"),
		dap4.SchemeSequence:    track,
		dap4.SchemeRecord:      rec,
		dap4.SchemeStructArray: rootCursor(t, s, "/stations"),
		dap4.SchemeSeqArray:    rootCursor(t, s, "/casts"),
	}
}

func TestIllegalSchemeOperations(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://obs")
	cursors := schemeCursors(t, s)

	ops := map[string]func(c *dap4.Cursor) error{
		"read": func(c *dap4.Cursor) error {
			_, err := c.Read(nil)
			return err
		},
		"read index": func(c *dap4.Cursor) error {
			_, err := c.ReadIndex(dap4.Index{})
			return err
		},
		"record count": func(c *dap4.Cursor) error {
			_, err := c.RecordCount()
			return err
		},
		"record": func(c *dap4.Cursor) error {
			_, err := c.Record(0)
			return err
		},
		"field": func(c *dap4.Cursor) error {
			_, err := c.Field(0)
			return err
		},
	}
	legal := map[dap4.Scheme][]string{
		dap4.SchemeAtomic:      {"read", "read index"},
		dap4.SchemeStructure:   {"field"},
		dap4.SchemeRecord:      {"field"},
		dap4.SchemeSequence:    {"record count", "record"},
		dap4.SchemeStructArray: {"read", "read index"},
		dap4.SchemeSeqArray:    {"read", "read index"},
	}

	for scheme, c := range cursors {
		require.Equal(t, scheme, c.Scheme())
		for name, op := range ops {
			isLegal := false
			for _, l := range legal[scheme] {
				isLegal = isLegal || l == name
			}
			if isLegal {
				continue
			}
			t.Run(fmt.Sprintf("%v/%s", scheme, name), func(t *testing.T) {
				err := op(c)
				require.Error(t, err)
				assert.True(t, errors.Is(err, dap4.ErrInvalidScheme), "got %v", err)

				var de *dap4.DataError
				require.True(t, errors.As(err, &de))
				assert.Equal(t, c.Template().FQN(), de.Node)
			})
		}
	}
}

func TestCompoundReadIndexReturnsOneCursor(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://obs")
	c := rootCursor(t, s, "/stations")

	res, err := c.ReadIndex(dap4.IndexOf(1, []int64{2}))
	require.NoError(t, err)
	elem, ok := res.(*dap4.Cursor)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, dap4.SchemeStructure, elem.Scheme())
	assert.Equal(t, int64(1), elem.Position())

	res, err = c.Read([]dap4.Slice{dap4.Whole(2)})
	require.NoError(t, err)
	elems := res.([]*dap4.Cursor)
	require.Len(t, elems, 2)
	for i, e := range elems {
		assert.Equal(t, int64(i), e.Position())
	}

	casts := rootCursor(t, s, "/casts")
	res, err = casts.ReadIndex(dap4.IndexOf(0, []int64{2}))
	require.NoError(t, err)
	assert.Equal(t, dap4.SchemeSequence, res.(*dap4.Cursor).Scheme())
}

func TestCountAndConsistencyLaws(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://obs")
	dd, err := dap4.NewDataDataset(s)
	require.NoError(t, err)

	for _, fqn := range []string{"/flags", "/label"} {
		t.Run(fqn, func(t *testing.T) {
			dv, err := dd.Find(fqn)
			require.NoError(t, err)
			a := dv.(*dap4.DataAtomic)

			want := int64(1)
			for _, n := range a.Variable().Shape() {
				want *= n
			}
			assert.Equal(t, want, a.Count())

			all, err := a.ReadAll()
			require.NoError(t, err)
			require.Equal(t, int(a.Count()), dap4.ArrayLen(all))
			for i := int64(0); i < a.Count(); i++ {
				v, err := a.ReadAt(i)
				require.NoError(t, err)
				assert.Equal(t, dap4.ValueAt(all, int(i)), v)
			}
		})
	}
}

func TestPartitionLaw(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://grid1")
	c := rootCursor(t, s, "/temp")
	shape := c.Template().Shape()

	for d := range shape {
		for k := int64(0); k <= shape[d]; k++ {
			t.Run(fmt.Sprintf("dim%d/k%d", d, k), func(t *testing.T) {
				whole, err := c.Read(dap4.Wholes(shape))
				require.NoError(t, err)

				lo := dap4.Wholes(shape)
				lo[d] = dap4.Slice{Start: 0, Stop: k, Stride: 1}
				hi := dap4.Wholes(shape)
				hi[d] = dap4.Slice{Start: k, Stop: shape[d], Stride: 1}

				a, err := c.Read(lo)
				require.NoError(t, err)
				b, err := c.Read(hi)
				require.NoError(t, err)

				// Reassemble along d: for the outer coordinates before d
				// the lower part comes first.
				outer := int64(1)
				for _, n := range shape[:d] {
					outer *= n
				}
				inner := int64(1)
				for _, n := range shape[d+1:] {
					inner *= n
				}
				av, bv := a.([]int32), b.([]int32)
				var joined []int32
				for o := int64(0); o < outer; o++ {
					joined = append(joined, av[o*k*inner:(o+1)*k*inner]...)
					m := shape[d] - k
					joined = append(joined, bv[o*m*inner:(o+1)*m*inner]...)
				}
				assert.Equal(t, whole, joined)
			})
		}
	}
}

func TestLifecycle(t *testing.T) {
	c := fixtures(t)

	t.Run("unopened", func(t *testing.T) {
		s := memdsp.New(c)
		assert.Equal(t, dap4.StateUnopened, s.State())
		_, err := s.DMR()
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
		_, err = s.Order()
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
		_, err = s.ChecksumMode()
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
	})

	t.Run("double open", func(t *testing.T) {
		s := openSession(t, c, "mem://grid1")
		err := s.Open("mem://grid1")
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
	})

	t.Run("close invalidates cursors", func(t *testing.T) {
		s := memdsp.New(c)
		require.NoError(t, s.Open("mem://grid1"))
		cur := rootCursor(t, s, "/temp")

		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "close is idempotent")
		assert.Equal(t, dap4.StateClosed, s.State())

		_, err := cur.Read(dap4.Wholes([]int64{2, 3}))
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
		_, err = s.DMR()
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
		assert.True(t, errors.Is(s.Open("mem://grid1"), dap4.ErrLifecycle))
	})

	t.Run("released cursor", func(t *testing.T) {
		s := openSession(t, c, "mem://obs")
		arr := rootCursor(t, s, "/stations")
		res, err := arr.ReadIndex(dap4.IndexOf(0, []int64{2}))
		require.NoError(t, err)
		elem := res.(*dap4.Cursor)
		require.NoError(t, elem.Release())

		_, err = elem.Field(0)
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
		assert.True(t, errors.Is(elem.Release(), dap4.ErrLifecycle))

		// The freed slot is reused without reviving the stale cursor.
		res, err = arr.ReadIndex(dap4.IndexOf(1, []int64{2}))
		require.NoError(t, err)
		_, err = elem.Field(0)
		assert.True(t, errors.Is(err, dap4.ErrLifecycle))
		_, err = res.(*dap4.Cursor).Field(0)
		assert.NoError(t, err)
	})
}

func TestSessionOptions(t *testing.T) {
	c := fixtures(t)

	s := openSession(t, c, "mem://grid1")
	order, err := s.Order()
	require.NoError(t, err)
	assert.Equal(t, "LittleEndian", fmt.Sprint(order))
	mode, err := s.ChecksumMode()
	require.NoError(t, err)
	assert.Equal(t, dap4.DefaultChecksumMode, mode)

	s = openSession(t, c, "mem://grid1", dap4.WithChecksumMode(dap4.ChecksumAll), dap4.WithOrder(binary.BigEndian))
	order, err = s.Order()
	require.NoError(t, err)
	assert.Equal(t, binary.BigEndian, order)
	mode, err = s.ChecksumMode()
	require.NoError(t, err)
	assert.Equal(t, dap4.ChecksumAll, mode)
}

func TestVariableDataRejectsForeignVariables(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://obs")

	_, err := s.VariableData(dmr.NewAtomic("loose", dmr.Int8))
	assert.True(t, errors.Is(err, dap4.ErrSchema))

	ds, err := s.DMR()
	require.NoError(t, err)
	_, err = s.VariableData(ds.Find("/stations.id"))
	assert.True(t, errors.Is(err, dap4.ErrSchema))

	_, err = s.VariableData(nil)
	assert.True(t, errors.Is(err, dap4.ErrSchema))
}

func TestConcurrentCursors(t *testing.T) {
	s := openSession(t, fixtures(t), "mem://obs")
	dd, err := dap4.NewDataDataset(s)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- dap4.WalkData(dd, func(path string, dv dap4.DataVariable, err error) error {
				if err != nil {
					return err
				}
				if a, ok := dv.(*dap4.DataAtomic); ok {
					_, err = a.ReadAll()
				}
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestErrorsCarryCause(t *testing.T) {
	cause := errors.New("disk on fire")
	s := dap4.NewBase("broken", &brokenDriver{readErr: cause})
	require.NoError(t, s.Open("broken://x"))
	defer s.Close()

	c := rootCursor(t, s, "/v")
	_, err := c.Read(dap4.Wholes([]int64{3}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, dap4.ErrDataAccess))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, dap4.IsRecoverable(err))

	var de *dap4.DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "read", de.Op)
	assert.Equal(t, "/v", de.Node)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestOpenWithoutSchema(t *testing.T) {
	s := dap4.NewBase("broken", &brokenDriver{noSchema: true})
	err := s.Open("broken://x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dap4.ErrSchema))
	assert.True(t, errors.Is(err, dap4.ErrNoDMR))
	assert.True(t, dap4.IsRecoverable(err))
	assert.Equal(t, dap4.StateClosed, s.State())
}

func TestOpenWithMalformedSchema(t *testing.T) {
	s := dap4.NewBase("broken", &brokenDriver{badSchema: true})
	err := s.Open("broken://x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dap4.ErrSchema))
	assert.True(t, errors.Is(err, dmr.ErrInvalid))
}

func TestDriverReturnsWrongCount(t *testing.T) {
	s := dap4.NewBase("broken", &brokenDriver{short: true})
	require.NoError(t, s.Open("broken://x"))
	defer s.Close()

	_, err := rootCursor(t, s, "/v").Read(dap4.Wholes([]int64{3}))
	assert.True(t, errors.Is(err, dap4.ErrDataAccess))
}

package dap4

import (
	"errors"
	"fmt"
	"io"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// UnknownCount is returned by RecordCount when the backend cannot know
// how many records a sequence holds without reading them all. Records
// are then enumerated with increasing indices until Record fails with an
// error wrapping io.EOF.
const UnknownCount int64 = -1

// Handle addresses a slot in a session's cursor arena.
type Handle int32

const noParent Handle = -1

// slot is the arena entry behind a cursor.
type slot struct {
	scheme   Scheme
	template *dmr.Variable
	parent   Handle
	ref      Ref
	pos      int64
	records  int64
	counted  bool
	gen      uint32
	live     bool
}

// Cursor is a position in a session's data: a whole variable, an element
// of a compound array, a field or a sequence record. A cursor does not
// own its session; it is invalid once the session is closed or once the
// cursor is released.
type Cursor struct {
	owner    *Base
	handle   Handle
	gen      uint32
	scheme   Scheme
	template *dmr.Variable
	pos      int64
}

// Scheme returns the role of the cursor.
func (c *Cursor) Scheme() Scheme { return c.scheme }

// Template returns the schema variable the cursor reads. Element cursors
// of a compound array and record cursors share the template of the array
// or sequence they come from.
func (c *Cursor) Template() *dmr.Variable { return c.template }

// Position returns the row-major offset of an element cursor, the record
// number of a record cursor or the field number of a field cursor. It is
// 0 for root cursors.
func (c *Cursor) Position() int64 { return c.pos }

// Session returns the session the cursor belongs to.
func (c *Cursor) Session() *Base { return c.owner }

func (c *Cursor) String() string {
	return fmt.Sprintf("%v %s@%d", c.scheme, c.template.FQN(), c.pos)
}

func (b *Base) alloc(s slot) *Cursor {
	var h Handle
	if n := len(b.free); n > 0 {
		h = b.free[n-1]
		b.free = b.free[:n-1]
		s.gen = b.slots[h].gen
		b.slots[h] = s
	} else {
		h = Handle(len(b.slots))
		s.gen = 1
		b.slots = append(b.slots, s)
	}
	b.slots[h].live = true
	return &Cursor{owner: b, handle: h, gen: s.gen, scheme: s.scheme, template: s.template, pos: s.pos}
}

func (b *Base) release(h Handle) {
	sl := &b.slots[h]
	sl.live = false
	sl.ref = nil
	sl.gen++
	b.free = append(b.free, h)
}

// enter checks that the cursor may perform o. The caller holds b.mu.
func (c *Cursor) enter(o op) (slot, error) {
	b := c.owner
	node := c.template.FQN()
	if err := b.requireOpen(o.String(), node); err != nil {
		return slot{}, err
	}
	if int(c.handle) >= len(b.slots) {
		return slot{}, errorf(ErrLifecycle, o.String(), node, "cursor does not belong to this session")
	}
	sl := b.slots[c.handle]
	if !sl.live || sl.gen != c.gen {
		return slot{}, errorf(ErrLifecycle, o.String(), node, "cursor was released")
	}
	if !sl.scheme.allows(o) {
		return slot{}, errorf(ErrInvalidScheme, o.String(), node, "%v cursor", sl.scheme)
	}
	return sl, nil
}

// Read returns the values selected by slices, one slice per dimension.
// An ATOMIC cursor returns a typed array (see ContainerType); a compound
// array cursor returns one []*Cursor element per selected position.
func (c *Cursor) Read(slices []Slice) (interface{}, error) {
	b := c.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	sl, err := c.enter(opRead)
	if err != nil {
		return nil, err
	}
	v := sl.template
	shape := v.Shape()
	if err := checkSlices(slices, shape); err != nil {
		return nil, newError(ErrOutOfRange, "read", v.FQN(), err)
	}
	if sl.scheme == SchemeAtomic {
		return b.readAtomic(sl, "read", slices)
	}

	offsets, err := Offsets(slices, shape)
	if err != nil {
		return nil, newError(ErrOutOfRange, "read", v.FQN(), err)
	}
	out := make([]*Cursor, 0, len(offsets))
	for _, off := range offsets {
		child, err := b.element(c.handle, sl, "read", off)
		if err != nil {
			for _, done := range out {
				b.release(done.handle)
			}
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// ReadIndex returns the value at one coordinate of an ATOMIC cursor, or
// the single element cursor at that coordinate of a compound array.
func (c *Cursor) ReadIndex(ix Index) (interface{}, error) {
	b := c.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	sl, err := c.enter(opReadIndex)
	if err != nil {
		return nil, err
	}
	v := sl.template
	shape := v.Shape()
	if err := ix.check(shape); err != nil {
		return nil, newError(ErrOutOfRange, "read index", v.FQN(), err)
	}
	if sl.scheme == SchemeAtomic {
		slices := make([]Slice, len(ix.Indices))
		for d, i := range ix.Indices {
			slices[d] = Point(i)
		}
		arr, err := b.readAtomic(sl, "read index", slices)
		if err != nil {
			return nil, err
		}
		return ValueAt(arr, 0), nil
	}
	off := Index{Indices: ix.Indices, Dims: shape}.Offset()
	return b.element(c.handle, sl, "read index", off)
}

func (b *Base) readAtomic(sl slot, opName string, slices []Slice) (interface{}, error) {
	v := sl.template
	defer b.durationDebugLog(opName, v.FQN())()

	arr, err := b.driver.ReadAtomic(sl.ref, v, slices)
	if err != nil {
		return nil, accessError(opName, v.FQN(), err)
	}
	arr, err = Coerce(v.Type(), arr)
	if err != nil {
		return nil, accessError(opName, v.FQN(), err)
	}
	if got, want := int64(ArrayLen(arr)), selectionCount(slices); got != want {
		return nil, accessError(opName, v.FQN(), fmt.Errorf("backend returned %d values, want %d", got, want))
	}
	return arr, nil
}

func (b *Base) element(parent Handle, sl slot, opName string, off int64) (*Cursor, error) {
	v := sl.template
	ref, err := b.driver.Element(sl.ref, v, off)
	if err != nil {
		return nil, accessError(opName, fmt.Sprintf("%s%v", v.FQN(), IndexOf(off, v.Shape())), err)
	}
	return b.alloc(slot{scheme: elementScheme(sl.scheme), template: v, parent: parent, ref: ref, pos: off}), nil
}

// RecordCount returns the number of records of a SEQUENCE cursor, or
// UnknownCount.
func (c *Cursor) RecordCount() (int64, error) {
	b := c.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	sl, err := c.enter(opRecordCount)
	if err != nil {
		return 0, err
	}
	return b.recordCount(c.handle, sl)
}

func (b *Base) recordCount(h Handle, sl slot) (int64, error) {
	if sl.counted {
		return sl.records, nil
	}
	v := sl.template
	n, err := b.driver.RecordCount(sl.ref, v)
	if err != nil {
		return 0, accessError("record count", v.FQN(), err)
	}
	if n < 0 && n != UnknownCount {
		return 0, accessError("record count", v.FQN(), fmt.Errorf("backend returned record count %d", n))
	}
	b.slots[h].records = n
	b.slots[h].counted = true
	return n, nil
}

// Record returns a RECORD cursor over record i of a SEQUENCE cursor.
func (c *Cursor) Record(i int64) (*Cursor, error) {
	b := c.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	sl, err := c.enter(opRecord)
	if err != nil {
		return nil, err
	}
	v := sl.template
	n, err := b.recordCount(c.handle, sl)
	if err != nil {
		return nil, err
	}
	if i < 0 || (n != UnknownCount && i >= n) {
		return nil, errorf(ErrOutOfRange, "record", v.FQN(), "record %d of %d", i, n)
	}
	ref, err := b.driver.Record(sl.ref, v, i)
	if errors.Is(err, io.EOF) {
		return nil, newError(ErrOutOfRange, "record", v.FQN(), err)
	}
	if err != nil {
		return nil, accessError("record", v.FQN(), err)
	}
	return b.alloc(slot{scheme: SchemeRecord, template: v, parent: c.handle, ref: ref, pos: i}), nil
}

// Field returns a cursor over field i of a STRUCTURE or RECORD cursor.
func (c *Cursor) Field(i int) (*Cursor, error) {
	return c.field(i, "")
}

// FieldByName returns a cursor over the named field of a STRUCTURE or
// RECORD cursor.
func (c *Cursor) FieldByName(name string) (*Cursor, error) {
	return c.field(c.template.FieldIndex(name), name)
}

func (c *Cursor) field(i int, name string) (*Cursor, error) {
	b := c.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	sl, err := c.enter(opField)
	if err != nil {
		return nil, err
	}
	v := sl.template
	f := v.Field(i)
	if f == nil {
		if name != "" {
			return nil, errorf(ErrOutOfRange, "field", v.FQN(), "no field named %q", name)
		}
		return nil, errorf(ErrOutOfRange, "field", v.FQN(), "field %d of %d", i, len(v.Fields()))
	}
	scheme, err := SchemeFor(f)
	if err != nil {
		return nil, newError(ErrSchema, "field", f.FQN(), err)
	}
	ref, err := b.driver.Field(sl.ref, v, i)
	if err != nil {
		return nil, accessError("field", f.FQN(), err)
	}
	return b.alloc(slot{scheme: scheme, template: f, parent: c.handle, ref: ref, pos: int64(i)}), nil
}

// Release hands the cursor's slot back to the session. Any later use of
// the cursor fails with ErrLifecycle. Releasing a root cursor drops it
// from the session's cache.
func (c *Cursor) Release() error {
	b := c.owner
	b.mu.Lock()
	defer b.mu.Unlock()

	node := c.template.FQN()
	if err := b.requireOpen("release", node); err != nil {
		return err
	}
	if int(c.handle) >= len(b.slots) {
		return errorf(ErrLifecycle, "release", node, "cursor does not belong to this session")
	}
	sl := b.slots[c.handle]
	if !sl.live || sl.gen != c.gen {
		return errorf(ErrLifecycle, "release", node, "cursor was already released")
	}
	if sl.parent == noParent {
		delete(b.roots, sl.template)
	}
	b.release(c.handle)
	return nil
}

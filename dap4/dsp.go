package dap4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DSP is a data source processor session over one location.
//
// A session starts Unopened, becomes Open after a successful Open and is
// Closed by Close or by a failed Open. Every accessor other than Open,
// Close, Location and State fails with ErrLifecycle outside the Open
// state.
type DSP interface {
	// Open loads the schema of the location.
	Open(location string) error
	// Close releases the backend and invalidates every cursor of the
	// session. Closing a closed session does nothing.
	Close() error
	// DMR returns the schema of the open location.
	DMR() (*dmr.Dataset, error)
	// VariableData returns the root cursor of a top-level variable.
	VariableData(v *dmr.Variable) (*Cursor, error)
	// Order returns the byte order of the underlying data.
	Order() (binary.ByteOrder, error)
	// ChecksumMode returns the checksum policy of the session.
	ChecksumMode() (ChecksumMode, error)
	// ChecksumAlgorithm returns the function checksums are computed with.
	ChecksumAlgorithm() (ChecksumAlgorithm, error)
	Location() string
	State() State
}

// Ref is a backend's reference to one node instance: a whole variable, an
// element of a compound array, a field of an instance or a sequence
// record. Refs are created and interpreted only by the backend.
type Ref interface{}

// Driver is the contract a storage backend implements. Base calls a
// driver from one goroutine at a time, with arguments already validated
// against the schema the driver returned from Open.
type Driver interface {
	// Open reads the schema of location. Close is called afterwards
	// whether or not Open succeeded.
	Open(location string) (*dmr.Dataset, error)
	Close() error

	// Root returns the reference to the data of a top-level variable.
	Root(v *dmr.Variable) (Ref, error)
	// ReadAtomic returns the values of atomic variable v selected by
	// slices, in row-major order. Any slice type accepted by Coerce will
	// do.
	ReadAtomic(ref Ref, v *dmr.Variable, slices []Slice) (interface{}, error)
	// Element returns the element at a row-major offset of compound
	// array v.
	Element(ref Ref, v *dmr.Variable, offset int64) (Ref, error)
	// Field returns field i of a structure instance or sequence record
	// of v.
	Field(ref Ref, v *dmr.Variable, i int) (Ref, error)
	// RecordCount returns the number of records of a sequence instance,
	// or UnknownCount.
	RecordCount(ref Ref, v *dmr.Variable) (int64, error)
	// Record returns record i of a sequence instance. A driver that
	// reported UnknownCount returns io.EOF past the last record.
	Record(ref Ref, v *dmr.Variable, i int64) (Ref, error)
}

// Orderer is implemented by drivers whose data has a fixed byte order.
type Orderer interface {
	Order() binary.ByteOrder
}

// Base implements DSP on top of a Driver. It runs the session state
// machine, owns the cursor arena and serialises driver calls.
type Base struct {
	mu       sync.Mutex
	backend  string
	driver   Driver
	id       string
	opts     *options
	log      *logrus.Entry
	state    State
	location string
	dataset  *dmr.Dataset
	order    binary.ByteOrder
	slots    []slot
	free     []Handle
	roots    map[*dmr.Variable]*Cursor
}

var _ DSP = (*Base)(nil)

// NewBase returns an unopened session of the named backend.
func NewBase(backend string, d Driver, opts ...Option) *Base {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	id := uuid.New().String()
	return &Base{
		backend: backend,
		driver:  d,
		id:      id,
		opts:    o,
		log:     o.logger.WithFields(logrus.Fields{"dsp": id, "backend": backend}),
	}
}

// Backend returns the name of the backend behind the session.
func (b *Base) Backend() string { return b.backend }

// ID returns the session id used in log fields.
func (b *Base) ID() string { return b.id }

// durationDebugLog returns a deferrable function which logs the duration
// of an operation at debug level.
func (b *Base) durationDebugLog(op, node string) func() {
	startedAt := time.Now()
	return func() {
		b.log.WithFields(logrus.Fields{
			"op":       op,
			"node":     node,
			"duration": time.Since(startedAt),
		}).Debug("dsp." + op)
	}
}

func (b *Base) Open(location string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUnopened {
		return errorf(ErrLifecycle, "open", location, "session is %v", b.state)
	}
	defer b.durationDebugLog("open", location)()

	b.location = location
	ds, err := b.driver.Open(location)
	if err == nil && ds == nil {
		err = ErrNoDMR
	}
	if err == nil {
		if ferr := ds.Finish(); ferr != nil {
			err = ferr
		}
	}
	if err != nil {
		b.state = StateClosed
		kind := ErrDataAccess
		if errors.Is(err, ErrNoDMR) || errors.Is(err, dmr.ErrInvalid) {
			kind = ErrSchema
		}
		if cerr := b.driver.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("closing after failed open: %w", cerr))
		}
		return newError(kind, "open", location, err)
	}

	b.dataset = ds
	b.order = b.opts.order
	if b.order == nil {
		if o, ok := b.driver.(Orderer); ok && o.Order() != nil {
			b.order = o.Order()
		} else {
			b.order = binary.LittleEndian
		}
	}
	b.roots = make(map[*dmr.Variable]*Cursor)
	b.state = StateOpen
	b.log.WithFields(logrus.Fields{
		"location":  location,
		"variables": len(ds.TopVariables()),
	}).Debug("dsp opened")
	return nil
}

func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return nil
	}
	wasOpen := b.state == StateOpen
	b.state = StateClosed
	b.slots = nil
	b.free = nil
	b.roots = nil
	if !wasOpen {
		return nil
	}

	defer b.durationDebugLog("close", b.location)()
	if err := b.driver.Close(); err != nil {
		return accessError("close", b.location, err)
	}
	b.log.WithField("location", b.location).Debug("dsp closed")
	return nil
}

func (b *Base) requireOpen(op, node string) error {
	if b.state != StateOpen {
		return errorf(ErrLifecycle, op, node, "session is %v", b.state)
	}
	return nil
}

func (b *Base) DMR() (*dmr.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOpen("dmr", b.location); err != nil {
		return nil, err
	}
	return b.dataset, nil
}

func (b *Base) VariableData(v *dmr.Variable) (*Cursor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	node := ""
	if v != nil {
		node = v.FQN()
	}
	if err := b.requireOpen("variable data", node); err != nil {
		return nil, err
	}
	if !b.dataset.Contains(v) {
		return nil, errorf(ErrSchema, "variable data", node, "variable is not part of %s", b.location)
	}
	if !v.IsTopLevel() {
		return nil, errorf(ErrSchema, "variable data", node, "not a top-level variable")
	}
	if c, ok := b.roots[v]; ok {
		return c, nil
	}

	scheme, err := SchemeFor(v)
	if err != nil {
		return nil, newError(ErrSchema, "variable data", node, err)
	}
	ref, err := b.driver.Root(v)
	if err != nil {
		return nil, accessError("variable data", node, err)
	}
	c := b.alloc(slot{scheme: scheme, template: v, parent: noParent, ref: ref})
	b.roots[v] = c
	return c, nil
}

func (b *Base) Order() (binary.ByteOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOpen("order", b.location); err != nil {
		return nil, err
	}
	return b.order, nil
}

func (b *Base) ChecksumMode() (ChecksumMode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOpen("checksum mode", b.location); err != nil {
		return 0, err
	}
	return b.opts.checksum, nil
}

func (b *Base) ChecksumAlgorithm() (ChecksumAlgorithm, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireOpen("checksum algorithm", b.location); err != nil {
		return 0, err
	}
	return b.opts.alg, nil
}

func (b *Base) Location() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.location
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

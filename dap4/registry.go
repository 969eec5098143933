package dap4

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Params carries match context alongside a location, such as hints a
// caller has about the content of a file.
type Params map[string]interface{}

// Matcher decides whether a backend can serve a location. Matching must
// not open the location for reading data; it is called on a value that is
// never used as a session.
type Matcher interface {
	Match(location string, params Params) bool
}

// MatchFunc adapts a function to the Matcher interface.
type MatchFunc func(location string, params Params) bool

func (f MatchFunc) Match(location string, params Params) bool { return f(location, params) }

// Factory returns a new, unopened session.
type Factory func(opts ...Option) DSP

// Registration is one backend known to a Registry.
type Registration struct {
	Name    string
	Matcher Matcher
	Factory Factory
}

// Loader turns a matching registration into a session.
type Loader func(r Registration, opts ...Option) (DSP, error)

func defaultLoader(r Registration, opts ...Option) (DSP, error) {
	return r.Factory(opts...), nil
}

// Position selects where Register inserts a backend.
type Position int

const (
	Last Position = iota
	First
)

// Registry is an ordered list of backends. The first backend whose
// matcher accepts a location serves it.
type Registry struct {
	mu      sync.RWMutex
	entries []Registration
	loader  Loader
	session []Option
	log     *logrus.Entry
}

// NewRegistry returns an empty registry. Session options are passed to
// every session the registry creates.
func NewRegistry(session []Option, opts ...RegistryOption) *Registry {
	o := &registryOptions{logger: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(o)
	}
	return &Registry{
		loader:  defaultLoader,
		session: session,
		log:     o.logger.WithField("component", "registry"),
	}
}

// Register adds a backend at the front or the back of the list. Registering
// a name that is already present does nothing. It panics if the matcher or
// the factory is nil.
func (r *Registry) Register(name string, m Matcher, f Factory, where Position) {
	if m == nil {
		panic("dap4: must not register a nil Matcher")
	}
	if f == nil {
		panic("dap4: must not register a nil Factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(name) >= 0 {
		return
	}
	reg := Registration{Name: name, Matcher: m, Factory: f}
	if where == First {
		r.entries = append([]Registration{reg}, r.entries...)
	} else {
		r.entries = append(r.entries, reg)
	}
}

// Unregister removes the named backend and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(name)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// IsRegistered reports whether the named backend is present.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(name) >= 0
}

func (r *Registry) indexLocked(name string) int {
	for i, e := range r.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Registrations returns the backends in match order.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, len(r.entries))
	copy(out, r.entries)
	return out
}

// SetLoader replaces the way a matching registration becomes a session.
// A nil loader restores the default, which calls the factory.
func (r *Registry) SetLoader(l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l == nil {
		l = defaultLoader
	}
	r.loader = l
}

// FindMatchingDSP returns a new unopened session of the first backend
// that matches location. It fails with ErrNoMatchingBackend if none does.
func (r *Registry) FindMatchingDSP(location string, params Params) (DSP, error) {
	r.mu.RLock()
	entries := make([]Registration, len(r.entries))
	copy(entries, r.entries)
	loader := r.loader
	r.mu.RUnlock()

	for _, e := range entries {
		if !e.Matcher.Match(location, params) {
			continue
		}
		d, err := loader(e, r.session...)
		if err != nil {
			return nil, newError(ErrDataAccess, "load", location, fmt.Errorf("loading backend %s: %w", e.Name, err))
		}
		if d == nil {
			return nil, errorf(ErrDataAccess, "load", location, "backend %s produced no session", e.Name)
		}
		if st := d.State(); st != StateUnopened {
			return nil, errorf(ErrLifecycle, "load", location, "backend %s produced a %v session", e.Name, st)
		}
		r.log.WithFields(logrus.Fields{
			"location": location,
			"backend":  e.Name,
		}).Debug("matched backend")
		return d, nil
	}
	return nil, newError(ErrNoMatchingBackend, "find", location, nil)
}

// Open finds the backend for location and opens a session on it.
func (r *Registry) Open(location string, params Params) (DSP, error) {
	d, err := r.FindMatchingDSP(location, params)
	if err != nil {
		return nil, err
	}
	if err := d.Open(location); err != nil {
		return nil, err
	}
	return d, nil
}

package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/koustreak/dblens/internal/errs"
)

// Constructor builds an unconnected provider for one descriptor.
type Constructor func(desc Descriptor, opts Options) (Provider, error)

// Registration describes one backend. Backends call Register from init(),
// so a binary only carries the backends it imports.
type Registration struct {
	Type        Type
	DisplayName string
	New         Constructor
}

var (
	registryMu sync.RWMutex
	registry   = map[Type]Registration{}
)

// Register adds a backend to the process-wide registry. It panics on a
// duplicate or incomplete registration, which can only be a programming
// error in an init function.
func Register(r Registration) {
	if r.Type == "" || r.New == nil {
		panic("database: Register requires a type and a constructor")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[r.Type]; dup {
		panic(fmt.Sprintf("database: backend %q registered twice", r.Type))
	}
	registry[r.Type] = r
}

// unimplemented types are accepted in descriptors but have no backend.
var unimplemented = map[Type]bool{TypeRedis: true}

// Factory resolves a descriptor's type to a backend constructor.
type Factory struct {
	mu   sync.RWMutex
	regs map[Type]Registration
}

// NewFactory returns a factory over every backend registered so far.
func NewFactory() *Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	regs := make(map[Type]Registration, len(registry))
	for t, r := range registry {
		regs[t] = r
	}
	return &Factory{regs: regs}
}

// Register adds or replaces a backend on this factory only.
func (f *Factory) Register(r Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[r.Type] = r
}

// Types lists the registered backend types in sorted order.
func (f *Factory) Types() []Type {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Type, 0, len(f.regs))
	for t := range f.regs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registrations lists the registered backends sorted by type.
func (f *Factory) Registrations() []Registration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Registration, 0, len(f.regs))
	for _, r := range f.regs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (f *Factory) supported() string {
	types := f.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Create builds and validates a provider for desc. Only the requested
// backend's constructor runs. Unknown, unimplemented and not-compiled-in
// types fail with a config error naming the supported set.
func (f *Factory) Create(desc Descriptor, opts Options) (Provider, error) {
	f.mu.RLock()
	reg, ok := f.regs[desc.Type]
	f.mu.RUnlock()

	if !ok {
		switch {
		case desc.Type == "":
			return nil, errs.Config("", fmt.Sprintf("connection type is required; supported types: %s", f.supported()))
		case unimplemented[desc.Type]:
			return nil, errs.Config(string(desc.Type), fmt.Sprintf("%s support is not implemented; supported types: %s", desc.Type, f.supported()))
		case desc.Type.Known():
			return nil, errs.Config(string(desc.Type), fmt.Sprintf("%s support is not compiled in; supported types: %s", desc.Type, f.supported()))
		default:
			return nil, errs.Config(string(desc.Type), fmt.Sprintf("unsupported database type %q; supported types: %s", desc.Type, f.supported()))
		}
	}

	p, err := reg.New(desc, opts)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Package cognition provides the decision modules the engine consults.
//
// Modules are registered once, from an explicit list, when the engine initializes.
// A module that fails to build or initialize is logged and left out; callers must
// handle its absence.
package cognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/platform/logger"
)

// ErrRegistryLoaded is returned by a second Load.
var ErrRegistryLoaded = errors.New("module registry already loaded")

// Input is what a module receives for one decision.
type Input struct {
	Context simulation.DecisionContext
	Tick    uint64
}

// Module is a pluggable decision maker.
// ProcessDecision must honour ctx: the engine cancels it when the decision times out.
type Module interface {
	Initialize(ctx context.Context) error
	ProcessDecision(ctx context.Context, in Input) (*simulation.Decision, error)
}

// Factory builds a module.
type Factory func() (Module, error)

// ModuleSpec names a module and how to build it.
type ModuleSpec struct {
	Name    string
	Factory Factory
}

// Registry maps module names to loaded modules.
type Registry struct {
	mu      sync.RWMutex
	loaded  bool
	modules map[string]Module
	order   []string
	missing map[string]error
	logger  *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	return &Registry{
		modules: make(map[string]Module),
		missing: make(map[string]error),
		logger:  log,
	}
}

// Load builds and initializes every listed module. It can only run once.
// Individual failures are warnings, not errors.
func (r *Registry) Load(ctx context.Context, specs []ModuleSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return ErrRegistryLoaded
	}
	r.loaded = true

	for _, ms := range specs {
		if _, dup := r.modules[ms.Name]; dup {
			r.logger.Warnf("module %s listed twice, keeping the first", ms.Name)
			continue
		}
		m, err := r.build(ctx, ms)
		if err != nil {
			r.missing[ms.Name] = err
			r.logger.Warnf("module %s unavailable: %v", ms.Name, err)
			continue
		}
		r.modules[ms.Name] = m
		r.order = append(r.order, ms.Name)
		r.logger.Infof("module %s loaded", ms.Name)
	}
	return nil
}

func (r *Registry) build(ctx context.Context, ms ModuleSpec) (m Module, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while loading: %v", rec)
		}
	}()

	if ms.Factory == nil {
		return nil, errors.New("no factory")
	}
	m, err = ms.Factory()
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if m == nil {
		return nil, errors.New("factory returned nil module")
	}
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return m, nil
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names lists loaded modules in load order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Missing returns the modules that failed to load and why.
func (r *Registry) Missing() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.missing))
	for k, v := range r.missing {
		out[k] = v
	}
	return out
}

// Loaded reports whether Load has run.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

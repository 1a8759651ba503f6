package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrStrategyExists is returned when registering a duplicate strategy name.
	ErrStrategyExists = errors.New("recovery strategy already registered")

	// ErrStrategyNotFound is returned when removing an unknown strategy.
	ErrStrategyNotFound = errors.New("recovery strategy not found")
)

// Registry holds strategies sorted by ascending priority. Strategies with
// equal priority keep registration order.
//
// Registration normally happens once at startup but Register and Remove are
// safe to call at any time; readers always see a consistent snapshot.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewRegistry creates a registry populated with the given strategies.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a strategy, keeping the list sorted by priority.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("register: nil strategy")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.strategies {
		if existing.Name() == s.Name() {
			return fmt.Errorf("register %q: %w", s.Name(), ErrStrategyExists)
		}
	}

	// Copy-on-write so snapshots handed out earlier stay valid.
	next := make([]Strategy, len(r.strategies), len(r.strategies)+1)
	copy(next, r.strategies)
	next = append(next, s)
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Priority() < next[j].Priority()
	})
	r.strategies = next
	return nil
}

// Remove deletes the named strategy.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.strategies {
		if s.Name() != name {
			continue
		}
		next := make([]Strategy, 0, len(r.strategies)-1)
		next = append(next, r.strategies[:i]...)
		next = append(next, r.strategies[i+1:]...)
		r.strategies = next
		return nil
	}
	return fmt.Errorf("remove %q: %w", name, ErrStrategyNotFound)
}

// Get returns the named strategy.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Strategies returns the registered strategies in priority order.
func (r *Registry) Strategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategies[:len(r.strategies):len(r.strategies)]
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// Applicable returns, in priority order, the strategies whose CanRecover
// accepts the fault. A predicate that panics is logged and treated as false.
func (r *Registry) Applicable(err error, oc OperationContext, logger *slog.Logger) []Strategy {
	var out []Strategy
	for _, s := range r.Strategies() {
		if safeCanRecover(s, err, oc, logger) {
			out = append(out, s)
		}
	}
	return out
}

func safeCanRecover(s Strategy, err error, oc OperationContext, logger *slog.Logger) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			if logger != nil {
				logger.Warn("recovery strategy predicate panicked",
					"strategy", s.Name(),
					"panic", p,
				)
			}
			ok = false
		}
	}()
	return s.CanRecover(err, oc)
}

package recovery

import (
	"context"

	"github.com/zero-day-ai/resilience/fault"
)

// Strategy is a named remediation for a class of faults.
type Strategy interface {
	// Name uniquely identifies the strategy within a Registry.
	Name() string

	// Description explains what the strategy does.
	Description() string

	// Priority orders execution; lower values run first.
	Priority() int

	// CanRecover reports whether the strategy applies to the fault.
	CanRecover(err error, oc OperationContext) bool

	// Recover applies the remediation. It returns true when the caller should
	// retry the original operation. A returned error is reported and the next
	// applicable strategy is tried.
	Recover(ctx context.Context, err error, oc OperationContext) (bool, error)
}

// CanRecoverFunc decides strategy applicability.
type CanRecoverFunc func(err error, oc OperationContext) bool

// RecoverFunc performs a remediation.
type RecoverFunc func(ctx context.Context, err error, oc OperationContext) (bool, error)

// ForCategory returns a predicate matching faults classified as any of cats.
func ForCategory(cats ...fault.Category) CanRecoverFunc {
	return func(err error, _ OperationContext) bool {
		c := fault.Classify(err)
		for _, want := range cats {
			if c == want {
				return true
			}
		}
		return false
	}
}

// funcStrategy adapts plain functions to Strategy.
type funcStrategy struct {
	name        string
	description string
	priority    int
	canRecover  CanRecoverFunc
	recover     RecoverFunc
}

// NewStrategy builds a Strategy from functions. A nil canRecover applies to
// every fault; a nil recover never succeeds.
func NewStrategy(name, description string, priority int, canRecover CanRecoverFunc, recover RecoverFunc) Strategy {
	return &funcStrategy{
		name:        name,
		description: description,
		priority:    priority,
		canRecover:  canRecover,
		recover:     recover,
	}
}

func (s *funcStrategy) Name() string        { return s.name }
func (s *funcStrategy) Description() string { return s.description }
func (s *funcStrategy) Priority() int       { return s.priority }

func (s *funcStrategy) CanRecover(err error, oc OperationContext) bool {
	if s.canRecover == nil {
		return true
	}
	return s.canRecover(err, oc)
}

func (s *funcStrategy) Recover(ctx context.Context, err error, oc OperationContext) (bool, error) {
	if s.recover == nil {
		return false, nil
	}
	return s.recover(ctx, err, oc)
}

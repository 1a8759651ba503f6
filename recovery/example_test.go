package recovery_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/zero-day-ai/resilience/recovery"
)

// Example demonstrates wrapping a flaky call with recovery.
func Example() {
	mgr, err := recovery.NewManager(
		recovery.WithRegistry(recovery.NewDefaultRegistry(nil, 0)),
	)
	if err != nil {
		panic(err)
	}

	calls := 0
	err = recovery.Do(context.Background(), mgr, "fetchAdvisories", "ai-client", func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	fmt.Println(err, calls)

	// Output:
	// <nil> 2
}

// Example_customStrategy demonstrates registering a strategy at runtime.
func Example_customStrategy() {
	reg, _ := recovery.NewRegistry()
	_ = reg.Register(recovery.NewStrategy(
		"clear-cache",
		"Drop cached scan results",
		1,
		func(err error, oc recovery.OperationContext) bool { return oc.Component == "cache" },
		func(context.Context, error, recovery.OperationContext) (bool, error) { return true, nil },
	))

	mgr, _ := recovery.NewManager(recovery.WithRegistry(reg))
	oc := recovery.NewOperationContext("load", "cache")

	fmt.Println(mgr.AttemptRecovery(context.Background(), errors.New("stale entry"), oc))

	// Output:
	// true
}

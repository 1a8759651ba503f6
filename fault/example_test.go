package fault_test

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/zero-day-ai/resilience/fault"
)

// Example demonstrates classifying errors and deriving user-facing text.
func Example() {
	err := fmt.Errorf("load workspace: %w", fs.ErrNotExist)
	fmt.Println(fault.Classify(err))

	netErr := errors.New("dial tcp: connection refused")
	fmt.Println(fault.Classify(netErr), fault.SeverityOf(netErr))
	fmt.Println(fault.UserMessage(netErr))

	// Output:
	// filesystem
	// network low
	// Network connection failed. Please check your internet connection and try again.
}

// Example_structured demonstrates raising a pre-kinded fault.
func Example_structured() {
	err := fault.New("refresh", "ai-client", "AuthError", "session expired").
		WithCategory(fault.CategoryAuthentication).
		WithSeverity(fault.SeverityHigh)

	fmt.Println(err)
	fmt.Println(fault.Kind(err))
	fmt.Println(fault.UserMessage(err))

	// Output:
	// ai-client [refresh/AuthError]: session expired
	// AuthError
	// Error: Authentication failed. Please sign in again or check your credentials.
}

// Package fault classifies raised errors for recovery planning and user messaging.
//
// # Overview
//
// Every error maps to exactly one Category and one Severity. Both are derived
// heuristically from the error's message and kind (its type name, or the Kind
// carried by a *fault.Error) and are advisory only: they steer strategy
// selection and the wording shown to users, nothing more.
//
// # Classification Order
//
// Categories are resolved by walking an ordered rule list:
//
//	network -> filesystem -> authentication -> scanning ->
//	configuration -> memory -> permission -> unknown
//
// The first matching rule wins, so an error whose message matches several
// keyword sets always resolves to the earliest category in that order. The
// list is exposed through Rules so the ordering itself can be asserted in tests.
//
// # Usage
//
// Classify an arbitrary error:
//
//	cat := fault.Classify(err)
//	sev := fault.SeverityOf(err)
//
// Raise a pre-kinded fault with context:
//
//	err := fault.New("scan", "dependency-scanner", "ScanError", "lockfile unreadable").
//	    WithCause(ioErr).
//	    WithDetails(map[string]any{"file": "go.sum"})
//
// Produce the sentence shown to users instead of the raw error text:
//
//	msg := fault.UserMessage(err)
package fault

package fault

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"reflect"
	"strings"
)

// Rule pairs a predicate with the category it assigns. Rules are evaluated in
// slice order and the first match wins.
type Rule struct {
	Category Category

	// Kinds are lower-cased substrings matched against the fault kind.
	Kinds []string

	// Keywords are lower-cased substrings matched against the fault message.
	Keywords []string

	// Match is an optional structural check (errors.Is / errors.As) run before
	// the keyword sets.
	Match func(err error) bool
}

// Matches reports whether the rule applies to err given its lower-cased kind and message.
func (r Rule) Matches(err error, kind, msg string) bool {
	if r.Match != nil && r.Match(err) {
		return true
	}
	return containsAny(kind, r.Kinds) || containsAny(msg, r.Keywords)
}

var rules = []Rule{
	{
		Category: CategoryNetwork,
		Kinds:    []string{"operror", "dnserror", "neterror", "networkerror"},
		Keywords: []string{
			"network", "timeout", "timed out", "econnrefused", "econnreset",
			"enotfound", "etimedout", "connection refused", "connection reset",
			"no such host", "dial tcp", "unreachable", "socket", "fetch failed",
		},
		Match: func(err error) bool {
			var netErr net.Error
			return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
		},
	},
	{
		Category: CategoryFilesystem,
		Kinds:    []string{"filesystemerror", "fileerror"},
		Keywords: []string{
			"enoent", "no such file", "file", "directory", "eisdir", "enotdir",
			"disk", "no space left",
		},
		Match: func(err error) bool {
			return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist)
		},
	},
	{
		Category: CategoryAuthentication,
		Kinds:    []string{"autherror", "authenticationerror"},
		Keywords: []string{
			"unauthorized", "unauthenticated", "authenticat", "401", "invalid token",
			"token expired", "expired token", "api key", "credential", "login",
		},
	},
	{
		Category: CategoryScanning,
		Kinds:    []string{"scanerror"},
		Keywords: []string{"scan", "vulnerabilit", "finding"},
	},
	{
		Category: CategoryConfiguration,
		Kinds:    []string{"configerror", "configurationerror"},
		Keywords: []string{"config", "setting", "invalid option", "missing option"},
	},
	{
		Category: CategoryMemory,
		Kinds:    []string{"memoryerror", "rangeerror"},
		Keywords: []string{"out of memory", "memory", "heap", "allocation", "oom"},
	},
	{
		Category: CategoryPermission,
		Kinds:    []string{"permissionerror", "securityerror"},
		Keywords: []string{
			"permission", "eacces", "eperm", "forbidden", "403", "access denied",
			"not permitted",
		},
		Match: func(err error) bool {
			return errors.Is(err, fs.ErrPermission)
		},
	},
}

// Rules returns a copy of the ordered classification rules.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify maps err to exactly one Category. It never panics; nil and
// unmatched errors report CategoryUnknown. An explicit Category on a
// *fault.Error in the chain takes precedence over the heuristics.
func Classify(err error) Category {
	if IsNil(err) {
		return CategoryUnknown
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Category != "" && fe.Category.IsValid() {
		return fe.Category
	}

	kind := strings.ToLower(Kind(err))
	msg := strings.ToLower(err.Error())

	for _, r := range rules {
		if r.Matches(err, kind, msg) {
			return r.Category
		}
	}
	return CategoryUnknown
}

// wrapperTypes are error types that only carry context around another error.
var wrapperTypes = map[string]bool{
	"*fmt.wrapError":      true,
	"*fmt.wrapErrors":     true,
	"*errors.joinError":   true,
	"*errors.errorString": true,
}

// Kind returns the name of a fault, the analogue of an exception class name.
// The Kind of the first *fault.Error in the chain wins; otherwise the
// unqualified type name of the first non-wrapper error is used, e.g.
// "PathError" for *fs.PathError. Plain errors.New values report "Error".
func Kind(err error) string {
	if IsNil(err) {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		name := reflect.TypeOf(e).String()
		if wrapperTypes[name] {
			continue
		}
		name = strings.TrimLeft(name, "*")
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return "Error"
}

// IsNil reports whether err is nil or a typed nil pointer, map, slice, func
// or channel stored in a non-nil error interface. Calling Error or Unwrap on
// such a value usually panics.
func IsNil(err error) bool {
	if err == nil {
		return true
	}
	v := reflect.ValueOf(err)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

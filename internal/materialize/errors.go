// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolvedDependency is the sentinel error wrapped by UnresolvedDependencyError.
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	// ErrNetwork is the sentinel error wrapped by NetworkError.
	ErrNetwork = errors.New("network failure")
)

type (
	// NetworkError is a transient failure reaching an index or artifact
	// URL. The materializer retries these with bounded backoff before
	// folding them into the aggregate. It wraps ErrNetwork for
	// errors.Is() compatibility.
	NetworkError struct {
		URL   string
		Cause error
	}

	// ResolutionFailure pairs one requirement with the reason it could
	// not be resolved.
	ResolutionFailure struct {
		Requirement string
		Cause       error
	}

	// UnresolvedDependencyError aggregates every per-requirement failure
	// from one materialization pass; resolution never stops at the first
	// failure. It wraps ErrUnresolvedDependency for errors.Is()
	// compatibility and exposes the individual causes through Unwrap.
	UnresolvedDependencyError struct {
		Failures []ResolutionFailure
	}
)

// Error implements the error interface for NetworkError.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure reaching %q: %v", e.URL, e.Cause)
}

// Unwrap returns the sentinel and the cause for errors.Is() compatibility.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Cause} }

// Error implements the error interface for UnresolvedDependencyError.
func (e *UnresolvedDependencyError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%q: %v", f.Requirement, f.Cause)
	}
	return fmt.Sprintf("failed to resolve %d requirement(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the sentinel and every per-requirement cause so
// errors.Is() finds both ErrUnresolvedDependency and, e.g., ErrNetwork
// buried in a single failed resolution.
func (e *UnresolvedDependencyError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	out = append(out, ErrUnresolvedDependency)
	for _, f := range e.Failures {
		out = append(out, f.Cause)
	}
	return out
}

package contract

import (
	"fmt"

	"github.com/mark3labs/oasrouter/spec"
)

// DefinitionError wraps problems that make the whole document unusable:
// duplicate Identifiers or named references that do not resolve. No
// contract is built when one is returned.
type DefinitionError struct {
	Err error
}

func (e *DefinitionError) Error() string { return "definition error: " + e.Err.Error() }
func (e *DefinitionError) Unwrap() error { return e.Err }

// SynthesisError localizes a problem to one operation and one of its fields
// (parameters, requestBody, responses, ...).
type SynthesisError struct {
	Method spec.HttpMethod
	Path   string
	Field  string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method.Upper(), e.Path, e.Field, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

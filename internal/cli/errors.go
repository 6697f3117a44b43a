package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/oasrouter/contract"
	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/multierr"
)

var ErrUsage = errors.New("cli usage error")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

// StageError reports every error of one pipeline stage, one per line.
type StageError struct {
	Stage string
	Errs  []error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d error(s)", e.Stage, len(e.Errs))
	for _, err := range e.Errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() []error { return e.Errs }

// stageError flattens err into a StageError. Definition errors are unwrapped
// so each duplicate or unresolved identifier gets its own line.
func stageError(stage string, err error) error {
	var de *contract.DefinitionError
	if errors.As(err, &de) {
		return &StageError{Stage: stage + " definitions", Errs: multierr.Errors(de.Err)}
	}
	return &StageError{Stage: stage, Errs: multierr.Errors(err)}
}

// specError maps structured loader errors into friendly usage messages.
func specError(err error) error {
	var se *spec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("spec: %s", se.Message)
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return newUsageError(msg)
}

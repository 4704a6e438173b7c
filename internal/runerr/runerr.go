// Package runerr classifies failures of a test run so the CLI can decide
// whether to abort and which exit code to report.
package runerr

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Kind defines the category of a run failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindProvisioning
	KindReadiness
	KindBuild
	KindTestFailure
	KindGeometryMismatch
	KindBaselineMissing
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindProvisioning:
		return "provisioning"
	case KindReadiness:
		return "readiness"
	case KindBuild:
		return "build"
	case KindTestFailure:
		return "test_failure"
	case KindGeometryMismatch:
		return "geometry_mismatch"
	case KindBaselineMissing:
		return "baseline_missing"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of this kind must abort the run.
func (k Kind) Fatal() bool {
	switch k {
	case KindConfig, KindProvisioning, KindReadiness, KindBuild:
		return true
	default:
		return false
	}
}

// Exit codes reported by the CLI.
const (
	ExitOK           = 0
	ExitFailed       = 1
	ExitUsage        = 2
	ExitProvisioning = 3
	ExitReadiness    = 4
	ExitBuild        = 5
)

// Error is a classified run failure.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Attributes) > 0 {
		keys := make([]string, 0, len(e.Attributes))
		for k := range e.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%q", k, fmt.Sprint(e.Attributes[k])))
		}
		msg = msg + " (" + strings.Join(parts, ", ") + ")"
	}
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as an Error of the given kind. A nil err returns nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps err with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// Attr attaches an attribute to err. Unclassified errors are wrapped as
// KindUnknown first.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindUnknown, Message: err.Error(), Underlying: nil}
		err = e
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return err
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Join combines errs like errors.Join but orders fatal failures first, so
// KindOf and ExitCode report the most severe kind.
func Join(errs ...error) error {
	sorted := slices.Clone(errs)
	slices.SortStableFunc(sorted, func(a, b error) int {
		return severity(b) - severity(a)
	})
	return errors.Join(sorted...)
}

func severity(err error) int {
	if err != nil && KindOf(err).Fatal() {
		return 1
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// GetAttr returns an attribute from the outermost classified error.
func GetAttr(err error, key string) (any, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Attributes == nil {
		return nil, false
	}
	v, ok := e.Attributes[key]
	return v, ok
}

// ExitCode maps an error to the CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitUsage
	case KindProvisioning:
		return ExitProvisioning
	case KindReadiness:
		return ExitReadiness
	case KindBuild:
		return ExitBuild
	default:
		return ExitFailed
	}
}

package framework

import (
	"errors"
	"fmt"
)

// SignalKind identifies the three control signals a test body can raise.
type SignalKind string

const (
	SignalSkip  SignalKind = "skip"
	SignalStop  SignalKind = "stop"
	SignalAbort SignalKind = "abort"
)

// Scope identifies which level of the tree a signal targets.
type Scope string

const (
	ScopeStep  Scope = "step"
	ScopeCase  Scope = "case"
	ScopeSuite Scope = "suite"
)

// Signal is a control-flow value, not a failure. Test bodies return it from
// the scope function in which it was raised; each scope's close logic matches
// on kind and target, resolving the signal at the target scope and finalizing
// every scope it passes through on the way there.
type Signal struct {
	Kind    SignalKind
	Target  Scope
	Message string
}

func (s *Signal) Error() string {
	if s.Message == "" {
		return fmt.Sprintf("%s %s", s.Target, s.Kind)
	}
	return fmt.Sprintf("%s %s: %s", s.Target, s.Kind, s.Message)
}

// AsSignal extracts a control signal from an error chain.
func AsSignal(err error) (*Signal, bool) {
	var sig *Signal
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}

// DirectoryConflictError reports that a scope's working directory already
// exists. Directory names are derived from scope numbering and titles, so a
// conflict is a programmer error and is never retried.
type DirectoryConflictError struct {
	Path string
}

func (e *DirectoryConflictError) Error() string {
	return fmt.Sprintf("scope directory already exists: %s", e.Path)
}

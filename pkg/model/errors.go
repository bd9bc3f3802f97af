package model

import (
	"errors"
	"fmt"
)

// ErrEmptyResult is returned when no files survive filtering.
var ErrEmptyResult = errors.New("no python files were found to process; check the root directory and ignore settings")

// ParseError records a file whose source could not be parsed.
type ParseError struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
	Err  string `json:"error"`
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Err)
}

// DecodeError records a file that no configured text encoding could decode.
type DecodeError struct {
	Path      string   `json:"path"`
	Encodings []string `json:"encodings"`
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: failed with every encoding %v", e.Path, e.Encodings)
}

// MissingTargetError reports a target specifier that does not resolve to an
// existing file or definition.
type MissingTargetError struct {
	Target string `json:"target"`
	Path   string `json:"path,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (e *MissingTargetError) Error() string {
	switch {
	case e.Path != "" && e.Reason != "":
		return fmt.Sprintf("target %q: %s (%s)", e.Target, e.Reason, e.Path)
	case e.Path != "":
		return fmt.Sprintf("target %q: file not found: %s", e.Target, e.Path)
	case e.Reason != "":
		return fmt.Sprintf("target %q: %s", e.Target, e.Reason)
	default:
		return fmt.Sprintf("target %q not found", e.Target)
	}
}

// FileError is a per-file problem that was recovered by skipping the file.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

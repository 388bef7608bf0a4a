package common

import (
	"fmt"
	"strings"
)

// FileAccessError reports an open, read, write or mkdir failure on a path.
// A missing file is reported the same way as any other access failure.
type FileAccessError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// MissingInputError reports that a directory lacks the inputs a stage needs.
type MissingInputError struct {
	Dir    string
	Ext    string
	Reason string
}

func (e *MissingInputError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no files found"
	}
	return fmt.Sprintf("missing input in %s: %s (%s)", e.Dir, reason, e.Ext)
}

// ExternalToolError reports a subprocess that could not be started or that
// exited non-zero. ExitCode is -1 when the process never ran to completion.
type ExternalToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Err      error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("%s %s: exit %d: %v", e.Tool, strings.Join(e.Args, " "), e.ExitCode, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// ConversionError wraps a failed a3m-to-pqt conversion of one alignment
// directory. It aborts the remaining conversions of the batch.
type ConversionError struct {
	Dir string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %s: %v", e.Dir, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

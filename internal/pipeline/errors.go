package pipeline

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	// KindSpawnFailure means a tool could not be started.
	KindSpawnFailure ErrorKind = "spawn_failure"
	// KindNonZeroExit means a tool exited unsuccessfully.
	KindNonZeroExit ErrorKind = "non_zero_exit"
	// KindMissingOutput means the transcoder succeeded but left no usable file.
	KindMissingOutput ErrorKind = "missing_output"
	// KindResourceExhausted means the host lacked room to run the job.
	KindResourceExhausted ErrorKind = "resource_exhausted"
	// KindAborted means the caller's context ended the run.
	KindAborted ErrorKind = "aborted"
)

// Stage names the part of the pipeline that failed.
type Stage string

const (
	StagePrepare   Stage = "prepare"
	StageDownload  Stage = "download"
	StageTranscode Stage = "transcode"
	StageDeliver   Stage = "deliver"
)

// Error is a pipeline failure with the tail of the failing tool's stderr.
type Error struct {
	Kind   ErrorKind
	Stage  Stage
	Err    error
	Stderr string
}

func newError(kind ErrorKind, stage Stage, err error, stderr string) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err, Stderr: stderr}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the tool's exit code, or -1 when it did not exit normally.
func (e *Error) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Diagnostic is a short human-readable explanation: the error plus the
// last stderr line, if any.
func (e *Error) Diagnostic() string {
	msg := e.Error()
	if e.Stderr == "" {
		return msg
	}
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	return msg + ": " + lines[len(lines)-1]
}

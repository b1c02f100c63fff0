package transcode

import (
	"errors"
	"fmt"
)

var (
	ErrSpawn     = errors.New("cannot start transcoder")
	ErrTranscode = errors.New("transcode failed")
)

// SpawnError means the transcoder process never started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

// TranscodeError means the process ran and failed. Stderr holds the tail of its output.
type TranscodeError struct {
	Input    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscodeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("transcode %s: exit %d: %v", e.Input, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("transcode %s: exit %d: %s", e.Input, e.ExitCode, e.Stderr)
}

func (e *TranscodeError) Unwrap() []error { return []error{ErrTranscode, e.Err} }

package recording

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrSinkClosed = errors.New("sink closed")

// Sink is an append-only byte sink for one capture.
type Sink interface {
	Name() string
	Write([]byte) (int, error)
	// Close flushes everything written so far; once it returns the file is complete.
	Close() error
}

type fileSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// NewFileSink creates filename and buffers writes to it. An existing file is
// never reused; that case fails with an error matching fs.ErrExist.
func NewFileSink(filename string) (Sink, error) {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f, w: bufio.NewWriterSize(f, 64<<10)}, nil
}

func (s *fileSink) Name() string { return s.f.Name() }

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.w.Write(p)
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true

	flushErr := s.w.Flush()
	syncErr := s.f.Sync()
	closeErr := s.f.Close()
	if err := errors.Join(flushErr, syncErr, closeErr); err != nil {
		return fmt.Errorf("close %s: %w", s.f.Name(), err)
	}
	return nil
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var (
	// ErrInputCancelled is returned when a read is abandoned because the
	// context ended.
	ErrInputCancelled = errors.New("input canceled")
	// ErrInputTerminated is returned when the input stream is closed.
	ErrInputTerminated = errors.New("input terminated")
)

// NonBlockingReader reads lines without ignoring context cancellation.
// A read abandoned on cancellation keeps running in the background and its
// line is delivered to the next ReadLine.
type NonBlockingReader struct {
	reader  *bufio.Reader
	pending chan readResult
	mu      sync.Mutex
}

type readResult struct {
	err   error
	value string
}

// NewNonBlockingReader wraps reader.
func NewNonBlockingReader(reader io.Reader) *NonBlockingReader {
	if reader == nil {
		panic("reader cannot be nil")
	}
	return &NonBlockingReader{reader: bufio.NewReader(reader)}
}

// ReadLine reads one trimmed line.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ErrInputCancelled
	}

	r.mu.Lock()
	ch := r.pending
	if ch == nil {
		ch = make(chan readResult, 1)
		r.pending = ch
		go func() {
			value, err := r.reader.ReadString('\n')
			ch <- readResult{value: value, err: err}
		}()
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-ch:
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()

		if res.err != nil {
			if errors.Is(res.err, io.EOF) && strings.TrimSpace(res.value) != "" {
				return strings.TrimSpace(res.value), nil
			}
			if errors.Is(res.err, io.EOF) {
				return "", ErrInputTerminated
			}
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler turns SIGINT/SIGTERM into context cancellation and tells
// the operator what happens to the files still in flight.
type InterruptHandler struct {
	writer      io.Writer
	stop        func()
	message     string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler that writes to writer.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer:  writer,
		message: "Unfinished files are recorded as failed; nothing already uploaded is rolled back.",
	}
}

// SetMessage replaces the hint printed after an interrupt.
func (h *InterruptHandler) SetMessage(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.message = message
}

// HandleInterrupts returns a context canceled on the first interrupt.
// Release stops listening for signals.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	h.mu.Lock()
	h.stop = func() {
		signal.Stop(sigChan)
		close(done)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-sigChan:
			h.interrupt()
			cancel()
		case <-done:
		case <-ctx.Done():
		}
	}()

	return ctx
}

// Release stops signal handling. It is safe to call more than once.
func (h *InterruptHandler) Release() {
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (h *InterruptHandler) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return
	}
	h.interrupted = true

	msg := "\n\n" + FormatWarning("Interrupted!")
	if h.message != "" {
		msg += "\n" + FormatInfo(h.message)
	}
	if _, err := fmt.Fprintln(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

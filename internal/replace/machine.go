// Package replace drives the "material already exists, replace it?"
// confirmation flow.
//
// The current state lives in an atomic cell that is written synchronously
// on every transition. The upload result handler decides between "fresh
// conflict" and "replace failed" from the state read at dispatch time, so
// a 409 answering a replace attempt can never reopen the prompt as if it
// were a new conflict.
package replace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/duplicate"
	"github.com/Veraticus/matflow/internal/model"
)

// State is a position in the confirmation flow.
type State int32

// States.
const (
	Idle State = iota
	ConflictDetected
	Replacing
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ConflictDetected:
		return "conflict_detected"
	case Replacing:
		return "replacing"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrConflictDetected is returned when an upload found an existing
	// material; the conflict is open and waits for Confirm or Cancel.
	ErrConflictDetected = errors.New("material already exists")
	// ErrReplaceFailed is returned when the backend rejected a replace
	// attempt; the conflict stays open for another try.
	ErrReplaceFailed = errors.New("replace failed")
	// ErrNoConflict is returned by Confirm when nothing is waiting.
	ErrNoConflict = errors.New("no open conflict")
	// ErrReplaceInProgress is returned while a replace attempt is running.
	ErrReplaceInProgress = errors.New("replace already in progress")
	// ErrConflictOpen is returned by Submit while a conflict is unresolved.
	ErrConflictOpen = errors.New("a conflict is waiting for a decision")
)

// Uploader sends one upload request.
type Uploader interface {
	Upload(ctx context.Context, req model.UploadRequest, progress api.ProgressFunc) (*model.Material, error)
}

// DuplicateChecker runs the pre-flight check.
type DuplicateChecker interface {
	Check(ctx context.Context, productName string, materialType model.MaterialType) (duplicate.Result, error)
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	Conflict *model.DuplicateConflict
	Material *model.Material
	Message  string
	State    State
}

// Option configures a Machine.
type Option func(*Machine)

// WithChecker enables the pre-flight duplicate check in Submit.
func WithChecker(c DuplicateChecker) Option {
	return func(m *Machine) {
		m.checker = c
	}
}

// WithOnReplaced registers a hook that runs after a successful replace.
func WithOnReplaced(fn func(*model.Material)) Option {
	return func(m *Machine) {
		m.onReplaced = fn
	}
}

// Machine is the replace-confirmation state machine.
type Machine struct {
	uploader   Uploader
	checker    DuplicateChecker
	onReplaced func(*model.Material)
	conflict   *model.DuplicateConflict
	material   *model.Material
	message    string
	mu         sync.Mutex
	state      atomic.Int32
}

// New creates a machine in the Idle state.
func New(uploader Uploader, opts ...Option) *Machine {
	m := &Machine{uploader: uploader}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{State: m.State(), Message: m.message, Material: m.material}
	if m.conflict != nil {
		c := *m.conflict
		if c.PendingPayload != nil {
			p := *c.PendingPayload
			c.PendingPayload = &p
		}
		snap.Conflict = &c
	}
	return snap
}

// Open records a conflict and waits for a decision. Both the pre-flight
// check and an upload 409 land here.
func (m *Machine) Open(conflict model.DuplicateConflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(conflict)
}

func (m *Machine) openLocked(conflict model.DuplicateConflict) error {
	if m.State() == Replacing {
		return ErrReplaceInProgress
	}
	if conflict.PendingPayload == nil {
		return errors.New("conflict has no pending payload")
	}
	payload := *conflict.PendingPayload
	payload.ReplaceExisting = false
	conflict.PendingPayload = &payload

	m.conflict = &conflict
	m.material = nil
	m.message = fmt.Sprintf("%q already exists (id %d)", conflict.ExistingMaterial.Name, conflict.ExistingMaterial.ID)
	m.state.Store(int32(ConflictDetected))
	return nil
}

// Confirm re-issues the pending payload with the replace flag set. The
// conflict stays open while the attempt runs.
func (m *Machine) Confirm(ctx context.Context, progress api.ProgressFunc) (*model.Material, error) {
	m.mu.Lock()
	switch m.State() {
	case ConflictDetected, Failed:
	case Replacing:
		m.mu.Unlock()
		return nil, ErrReplaceInProgress
	default:
		m.mu.Unlock()
		return nil, ErrNoConflict
	}
	if m.conflict == nil || m.conflict.PendingPayload == nil {
		m.mu.Unlock()
		return nil, ErrNoConflict
	}
	payload := m.conflict.PendingPayload.WithReplace()
	m.message = ""
	m.state.Store(int32(Replacing))
	m.mu.Unlock()

	return m.dispatch(ctx, payload, progress)
}

// Cancel abandons the open conflict.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == Replacing {
		return
	}
	m.conflict = nil
	m.message = ""
	m.state.Store(int32(Idle))
}

// Submit uploads a single file: a pre-flight duplicate check, then the
// upload. A detected conflict returns ErrConflictDetected and leaves the
// machine in ConflictDetected.
func (m *Machine) Submit(ctx context.Context, req model.UploadRequest, progress api.ProgressFunc) (*model.Material, error) {
	switch m.State() {
	case ConflictDetected, Failed:
		return nil, ErrConflictOpen
	case Replacing:
		return nil, ErrReplaceInProgress
	}
	req.ReplaceExisting = false

	if m.checker != nil {
		result, err := m.checker.Check(ctx, req.ProductName, req.MaterialType)
		if err != nil {
			return nil, err
		}
		if conflict, ok := result.Conflict(req); ok {
			if err := m.Open(conflict); err != nil {
				return nil, err
			}
			return nil, ErrConflictDetected
		}
	}

	return m.dispatch(ctx, req, progress)
}

// dispatch sends req and applies the result. The mode is read once, after
// the caller's synchronous transition and before the request goes out.
func (m *Machine) dispatch(ctx context.Context, req model.UploadRequest, progress api.ProgressFunc) (*model.Material, error) {
	mode := m.State()

	material, err := m.uploader.Upload(ctx, req, progress)

	m.mu.Lock()
	if err == nil {
		m.conflict = nil
		m.material = material
		m.message = ""
		m.state.Store(int32(Success))
		m.mu.Unlock()

		if mode == Replacing && m.onReplaced != nil {
			m.onReplaced(material)
		}
		return material, nil
	}
	defer m.mu.Unlock()

	var conflictErr *api.ConflictError
	isConflict := errors.As(err, &conflictErr)

	if mode == Replacing {
		if isConflict {
			m.message = "Replace failed: the server still reports an existing material"
			err = fmt.Errorf("%w: %w", ErrReplaceFailed, err)
		} else {
			m.message = fmt.Sprintf("Replace failed: %v", err)
		}
		slog.Warn("Replace attempt failed", "file", req.File.Name, "error", err)
		m.state.Store(int32(Failed))
		return nil, err
	}

	if isConflict {
		conflict := conflictErr.Conflict()
		if conflict.PendingPayload == nil {
			conflict.PendingPayload = &req
		}
		if openErr := m.openLocked(conflict); openErr != nil {
			return nil, openErr
		}
		return nil, fmt.Errorf("%w: %w", ErrConflictDetected, err)
	}

	m.message = err.Error()
	m.state.Store(int32(Idle))
	return nil, err
}

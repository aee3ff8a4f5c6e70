package scenario

import (
	"fmt"

	"flowvault/core/events"
)

// RegistryKind selects one of the two collaborator allow-lists.
type RegistryKind uint8

const (
	RegistrySource RegistryKind = iota
	RegistryExecutor
)

func (k RegistryKind) Valid() bool {
	switch k {
	case RegistrySource, RegistryExecutor:
		return true
	default:
		return false
	}
}

func (k RegistryKind) String() string {
	switch k {
	case RegistrySource:
		return "source"
	case RegistryExecutor:
		return "executor"
	default:
		return "unknown"
	}
}

type registryState interface {
	RegistrySet(kind RegistryKind, addr [20]byte, registered bool) error
	RegistryGet(kind RegistryKind, addr [20]byte) (bool, error)
	PauseSet(paused bool) error
	PauseGet() (bool, error)
}

// Registry holds the two collaborator allow-lists and the execution pause
// flag. All writes require the single manager principal fixed at
// construction; reads are open. Only Execute consults the pause flag, so
// deposits and withdrawals stay available while paused.
type Registry struct {
	state   registryState
	manager [20]byte
	emitter events.Emitter
}

// NewRegistry creates a registry governed by the given manager address.
func NewRegistry(manager [20]byte) *Registry {
	return &Registry{manager: manager, emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Manager returns the governing principal.
func (r *Registry) Manager() [20]byte { return r.manager }

func (r *Registry) emit(evt events.Event) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

func (r *Registry) requireManager(caller [20]byte) error {
	if caller != r.manager {
		return ErrNotManager
	}
	return nil
}

// Update flips the allow-list entry for the given collaborator address. The
// write is an unconditional overwrite.
func (r *Registry) Update(caller [20]byte, kind RegistryKind, addr [20]byte, registered bool) error {
	if err := r.requireManager(caller); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("scenario: invalid registry kind %d", kind)
	}
	if err := r.state.RegistrySet(kind, addr, registered); err != nil {
		return err
	}
	r.emit(events.RegistryUpdated{Kind: kind.String(), Addr: addr, Registered: registered})
	return nil
}

// SourceRegistered reports whether the address is a trusted source validator.
// Unknown addresses default to false, as do state read failures.
func (r *Registry) SourceRegistered(addr [20]byte) bool {
	if r == nil || r.state == nil {
		return false
	}
	ok, err := r.state.RegistryGet(RegistrySource, addr)
	return err == nil && ok
}

// ExecutorRegistered reports whether the address is a trusted action
// executor.
func (r *Registry) ExecutorRegistered(addr [20]byte) bool {
	if r == nil || r.state == nil {
		return false
	}
	ok, err := r.state.RegistryGet(RegistryExecutor, addr)
	return err == nil && ok
}

// SetExecutionPaused flips the process-wide execution gate.
func (r *Registry) SetExecutionPaused(caller [20]byte, paused bool) error {
	if err := r.requireManager(caller); err != nil {
		return err
	}
	if err := r.state.PauseSet(paused); err != nil {
		return err
	}
	r.emit(events.PauseUpdated{Paused: paused})
	return nil
}

// ExecutionPaused reads the execution gate. State read failures report the
// gate as closed, failing executions rather than letting them through.
func (r *Registry) ExecutionPaused() bool {
	if r == nil || r.state == nil {
		return true
	}
	paused, err := r.state.PauseGet()
	if err != nil {
		return true
	}
	return paused
}

package scenario

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"flowvault/core/events"
)

var (
	errNilState = errors.New("scenario engine: state not configured")
	errNilBank  = errors.New("scenario engine: bank not configured")
)

// Transferor is the asset-transfer boundary. The engine treats any transfer
// failure as fatal to the enclosing operation.
type Transferor interface {
	Transfer(asset, from, to [20]byte, amount *big.Int) error
	BalanceOf(asset, holder [20]byte) (*big.Int, error)
}

// BalanceJournal is an optional capability of the bank boundary. When the
// bank supports it, the engine snapshots before moving funds and reverts all
// movements of an aborted operation, keeping every call all-or-nothing even
// though custody transfers happen mid-flow.
type BalanceJournal interface {
	Snapshot() int
	RevertTo(marker int) error
}

type engineState interface {
	ScenarioPut(*Scenario) error
	ScenarioGet(id uint64) (*Scenario, bool, error)
	ScenarioDelete(id uint64) error
	ScenarioCounter() (uint64, error)
	NextScenarioID() (uint64, error)
	OwnerIndexAdd(owner [20]byte, id uint64) error
	OwnerIndexRemove(owner [20]byte, id uint64) error
	OwnerIndexContains(owner [20]byte, id uint64) (bool, error)
	OwnerIndexList(owner [20]byte) ([]uint64, error)
	registryState
}

// Engine orchestrates the scenario lifecycle: escrow on submission, refund on
// withdrawal and the single-shot trigger/action state machine on execution.
// It never interprets trigger or action payloads itself; those are dispatched
// to the collaborators bound for the referenced addresses, with the registry
// acting as the trust boundary at submission time.
type Engine struct {
	state    engineState
	bank     Transferor
	registry *Registry
	emitter  events.Emitter
	vault    [20]byte

	// mu guards every mutating entry point. Custody leaves the vault
	// toward untrusted executors mid-flow, before the terminal residue
	// check, so a collaborator calling back into the engine must be
	// rejected, not allowed to interleave. TryLock turns re-entry into
	// ErrReentrantCall instead of a self-deadlock; the transport layer is
	// responsible for serialising legitimate concurrent callers.
	mu sync.Mutex

	validators map[[20]byte]SourceValidator
	executors  map[[20]byte]ActionExecutor
}

// NewEngine creates an engine with a no-op emitter. The state backend, bank
// boundary and registry must be wired before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		validators: make(map[[20]byte]SourceValidator),
		executors:  make(map[[20]byte]ActionExecutor),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank configures the asset-transfer boundary.
func (e *Engine) SetBank(bank Transferor) { e.bank = bank }

// SetRegistry configures the collaborator trust registry and pause gate.
func (e *Engine) SetRegistry(registry *Registry) { e.registry = registry }

// SetVault configures the custody address holding escrowed value.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the custody address.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// BindSource binds a validator implementation to a collaborator address.
// Binding is the dispatch table; the registry stays the trust boundary.
func (e *Engine) BindSource(addr [20]byte, v SourceValidator) {
	if v == nil {
		delete(e.validators, addr)
		return
	}
	e.validators[addr] = v
}

// BindExecutor binds an executor implementation to a collaborator address.
func (e *Engine) BindExecutor(addr [20]byte, x ActionExecutor) {
	if x == nil {
		delete(e.executors, addr)
		return
	}
	e.executors[addr] = x
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// withRollback runs fn and, when the bank supports journaling, unwinds every
// balance movement fn performed if it returns an error.
func (e *Engine) withRollback(fn func() error) error {
	journal, ok := e.bank.(BalanceJournal)
	if !ok {
		return fn()
	}
	marker := journal.Snapshot()
	if err := fn(); err != nil {
		if revertErr := journal.RevertTo(marker); revertErr != nil {
			return fmt.Errorf("%w (revert failed: %v)", err, revertErr)
		}
		return err
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	if e.registry == nil {
		return errors.New("scenario engine: registry not configured")
	}
	return nil
}

// AddScenario validates the submitted definition, pulls the declared amount
// from the caller into the vault and stores the record under a fresh id.
// Validation is exhaustive across all scripts before any fund movement: a
// single unregistered collaborator anywhere aborts the whole submission.
func (e *Engine) AddScenario(caller [20]byte, def *Scenario) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if !e.mu.TryLock() {
		return 0, ErrReentrantCall
	}
	defer e.mu.Unlock()
	sanitized, err := Sanitize(def)
	if err != nil {
		return 0, err
	}
	for _, script := range sanitized.Scripts {
		for _, src := range script.Sources {
			if !e.registry.SourceRegistered(src.Validator) {
				return 0, &InvalidSourceError{Addr: src.Validator}
			}
		}
		for _, act := range script.Actions {
			if !e.registry.ExecutorRegistered(act.Executor) {
				return 0, &InvalidExecutorError{Addr: act.Executor}
			}
		}
	}
	var id uint64
	err = e.withRollback(func() error {
		if err := e.bank.Transfer(sanitized.Asset, caller, e.vault, sanitized.Amount); err != nil {
			return fmt.Errorf("scenario: escrow transfer failed: %w", err)
		}
		next, err := e.state.NextScenarioID()
		if err != nil {
			return err
		}
		id = next
		sanitized.ID = id
		sanitized.Owner = caller
		if err := e.state.ScenarioPut(sanitized); err != nil {
			return err
		}
		if err := e.state.OwnerIndexAdd(caller, id); err != nil {
			// keep record and index in step even on a failing backend
			if delErr := e.state.ScenarioDelete(id); delErr != nil {
				return fmt.Errorf("%w (record cleanup failed: %v)", err, delErr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.emit(events.ScenarioAdded{Owner: caller, ID: id, Asset: sanitized.Asset, Amount: cloneBigInt(sanitized.Amount)})
	return id, nil
}

// RemoveScenario refunds the full escrowed amount to the owner and erases the
// record. It is the fund-safety escape hatch and is never gated by the pause
// flag. A caller that does not own the id gets ErrNotFound, indistinguishable
// from an id that never existed.
func (e *Engine) RemoveScenario(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.mu.TryLock() {
		return ErrReentrantCall
	}
	defer e.mu.Unlock()
	owned, err := e.state.OwnerIndexContains(caller, id)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotFound
	}
	sc, ok, err := e.state.ScenarioGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := e.withRollback(func() error {
		if err := e.bank.Transfer(sc.Asset, e.vault, caller, sc.Amount); err != nil {
			return fmt.Errorf("scenario: refund transfer failed: %w", err)
		}
		if err := e.state.ScenarioDelete(id); err != nil {
			return err
		}
		if err := e.state.OwnerIndexRemove(caller, id); err != nil {
			if putErr := e.state.ScenarioPut(sc); putErr != nil {
				return fmt.Errorf("%w (record restore failed: %v)", err, putErr)
			}
			return err
		}
		return nil
	}); err != nil {
		return err
	}
	e.emit(events.ScenarioRemoved{Owner: caller, ID: id, Asset: sc.Asset, Amount: cloneBigInt(sc.Amount)})
	return nil
}

// Execute runs one script of an owned scenario to completion. The call either
// commits fully (record deleted, escrow fully redistributed by the action
// chain) or aborts with a typed error leaving the scenario record untouched.
func (e *Engine) Execute(caller, owner [20]byte, id uint64, scriptIndex uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.mu.TryLock() {
		return ErrReentrantCall
	}
	defer e.mu.Unlock()

	if e.registry.ExecutionPaused() {
		return ErrExecutionPaused
	}
	owned, err := e.state.OwnerIndexContains(owner, id)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotFound
	}
	sc, ok, err := e.state.ScenarioGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if caller != sc.Actor {
		return ErrNotActor
	}
	if int(scriptIndex) >= len(sc.Scripts) {
		return ErrInvalidScript
	}
	script := sc.Scripts[scriptIndex]

	if err := e.validateSources(script); err != nil {
		return err
	}
	if err := e.withRollback(func() error {
		if err := e.runActions(script, Balance{Asset: sc.Asset, Amount: cloneBigInt(sc.Amount)}); err != nil {
			return err
		}
		if err := e.state.ScenarioDelete(id); err != nil {
			return err
		}
		if err := e.state.OwnerIndexRemove(owner, id); err != nil {
			if putErr := e.state.ScenarioPut(sc); putErr != nil {
				return fmt.Errorf("%w (record restore failed: %v)", err, putErr)
			}
			return err
		}
		return nil
	}); err != nil {
		return err
	}
	e.emit(events.ScenarioExecuted{Owner: owner, Actor: caller, ID: id, ScriptIndex: scriptIndex})
	return nil
}

// validateSources walks the script's sources in declared order. Under ALL the
// first failure aborts, attributed to its validator. Under ANY individual
// failures are tolerated; the script fails only when no source validated,
// which makes a zero-source ANY script unconditionally invalid while a
// zero-source ALL script passes vacuously.
func (e *Engine) validateSources(script Script) error {
	switch script.Mode {
	case TriggerAll:
		for _, src := range script.Sources {
			if err := e.validateSource(src); err != nil {
				return &SourceValidationError{Addr: src.Validator, Err: err}
			}
		}
		return nil
	case TriggerAny:
		for _, src := range script.Sources {
			if err := e.validateSource(src); err == nil {
				return nil
			}
		}
		return ErrNoValidSources
	default:
		return fmt.Errorf("scenario: invalid trigger mode %d", script.Mode)
	}
}

func (e *Engine) validateSource(src SourceRef) error {
	validator, ok := e.validators[src.Validator]
	if !ok {
		return ErrSourceUnbound
	}
	return validator.Validate(src.Kind, src.Input, src.Condition)
}

// runActions threads the escrowed balance through the action chain: each step
// transfers the running balance from the vault to the executor, invokes it,
// and adopts the returned descriptor as the next running balance. The chain
// must end at the zero balance.
func (e *Engine) runActions(script Script, balance Balance) error {
	for _, act := range script.Actions {
		executor, ok := e.executors[act.Executor]
		if !ok {
			return &ActionExecutionError{Addr: act.Executor, Err: ErrExecutorUnbound}
		}
		if balance.Amount != nil && balance.Amount.Sign() > 0 {
			if err := e.bank.Transfer(balance.Asset, e.vault, act.Executor, balance.Amount); err != nil {
				return &ActionExecutionError{Addr: act.Executor, Err: err}
			}
		}
		next, err := executor.Execute(Balance{Asset: balance.Asset, Amount: cloneBigInt(balance.Amount)}, act.Input)
		if err != nil {
			return &ActionExecutionError{Addr: act.Executor, Err: err}
		}
		balance = Balance{Asset: next.Asset, Amount: cloneBigInt(next.Amount)}
	}
	if !balance.Zero() {
		return ErrNonZeroResidue
	}
	return nil
}

// GetScenario returns the stored record for the id, if any.
func (e *Engine) GetScenario(id uint64) (*Scenario, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.ScenarioGet(id)
}

// ScenarioIDsByOwner lists the ids currently owned by the principal, in the
// dense order maintained by the owner index (insertion order until the first
// removal swaps the tail in).
func (e *Engine) ScenarioIDsByOwner(owner [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.OwnerIndexList(owner)
}

// ScenariosByOwner projects the owner's ids into (id, record) wrappers.
func (e *Engine) ScenariosByOwner(owner [20]byte) ([]Wrapper, error) {
	ids, err := e.ScenarioIDsByOwner(owner)
	if err != nil {
		return nil, err
	}
	out := make([]Wrapper, 0, len(ids))
	for _, id := range ids {
		sc, ok, err := e.state.ScenarioGet(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("scenario: owner index references missing id %d", id)
		}
		out = append(out, Wrapper{ID: id, Scenario: sc})
	}
	return out, nil
}

// Counter returns the last assigned scenario id.
func (e *Engine) Counter() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.ScenarioCounter()
}

// Registry exposes the engine's trust registry and pause gate.
func (e *Engine) Registry() *Registry { return e.registry }

package scenario

import (
	"fmt"
	"math/big"
)

// TriggerMode selects how a script's declared sources gate execution.
type TriggerMode uint8

const (
	// TriggerAll requires every declared source to validate. A script with
	// zero sources passes vacuously.
	TriggerAll TriggerMode = iota
	// TriggerAny requires at least one declared source to validate. A script
	// with zero sources can never produce a valid source and always fails.
	TriggerAny
)

// Valid reports whether the mode is within the supported range.
func (m TriggerMode) Valid() bool {
	switch m {
	case TriggerAll, TriggerAny:
		return true
	default:
		return false
	}
}

func (m TriggerMode) String() string {
	switch m {
	case TriggerAll:
		return "all"
	case TriggerAny:
		return "any"
	default:
		return "unknown"
	}
}

// SourceRef identifies one externally verified precondition. Input and
// Condition are opaque payloads interpreted only by the validator at the
// referenced address.
type SourceRef struct {
	Validator [20]byte
	Kind      uint8
	Input     []byte
	Condition []byte
}

// ActionRef is one step of value transformation; the payload is interpreted
// only by the executor at the referenced address.
type ActionRef struct {
	Executor [20]byte
	Input    []byte
}

// Script is one alternative execution path within a scenario: a set of
// trigger sources plus an ordered action chain.
type Script struct {
	Mode    TriggerMode
	Sources []SourceRef
	Actions []ActionRef
}

// Scenario captures a principal's escrowed value plus the candidate scripts
// describing how it may later be released. Owner holds custody rights; Actor
// is the sole principal permitted to trigger execution.
type Scenario struct {
	ID      uint64
	Owner   [20]byte
	Actor   [20]byte
	Asset   [20]byte
	Amount  *big.Int
	Scripts []Script
}

// Wrapper is a read-only (id, scenario) projection used by bulk queries.
type Wrapper struct {
	ID       uint64    `json:"id"`
	Scenario *Scenario `json:"scenario"`
}

// Balance is the running value descriptor threaded through an action chain.
// A zero-asset, zero-amount balance is the mandatory terminal state.
type Balance struct {
	Asset  [20]byte
	Amount *big.Int
}

// Zero reports whether the descriptor is the fully consumed terminal value.
func (b Balance) Zero() bool {
	return b.Asset == ([20]byte{}) && (b.Amount == nil || b.Amount.Sign() == 0)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone returns a deep copy of the script.
func (s Script) Clone() Script {
	out := Script{Mode: s.Mode}
	if s.Sources != nil {
		out.Sources = make([]SourceRef, len(s.Sources))
		for i, src := range s.Sources {
			out.Sources[i] = SourceRef{
				Validator: src.Validator,
				Kind:      src.Kind,
				Input:     cloneBytes(src.Input),
				Condition: cloneBytes(src.Condition),
			}
		}
	}
	if s.Actions != nil {
		out.Actions = make([]ActionRef, len(s.Actions))
		for i, act := range s.Actions {
			out.Actions[i] = ActionRef{
				Executor: act.Executor,
				Input:    cloneBytes(act.Input),
			}
		}
	}
	return out
}

// Clone returns a deep copy of the scenario so callers can safely mutate the
// copy without affecting the stored instance.
func (sc *Scenario) Clone() *Scenario {
	if sc == nil {
		return nil
	}
	out := &Scenario{
		ID:     sc.ID,
		Owner:  sc.Owner,
		Actor:  sc.Actor,
		Asset:  sc.Asset,
		Amount: cloneBigInt(sc.Amount),
	}
	if sc.Scripts != nil {
		out.Scripts = make([]Script, len(sc.Scripts))
		for i, script := range sc.Scripts {
			out.Scripts[i] = script.Clone()
		}
	}
	return out
}

// Sanitize validates the structural fields of a scenario definition and
// returns a cloned instance with a non-nil amount. Registry membership of the
// referenced collaborators is checked separately by the engine.
func Sanitize(sc *Scenario) (*Scenario, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario: nil scenario")
	}
	clone := sc.Clone()
	if clone.Actor == ([20]byte{}) {
		return nil, ErrInvalidActor
	}
	if clone.Asset == ([20]byte{}) {
		return nil, ErrInvalidAsset
	}
	if clone.Amount == nil || clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(clone.Scripts) == 0 {
		return nil, ErrNoScripts
	}
	for _, script := range clone.Scripts {
		if !script.Mode.Valid() {
			return nil, fmt.Errorf("scenario: invalid trigger mode %d", script.Mode)
		}
	}
	return clone, nil
}

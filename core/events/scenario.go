package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"flowvault/core/types"
)

const (
	TypeScenarioAdded    = "scenario.added"
	TypeScenarioRemoved  = "scenario.removed"
	TypeScenarioExecuted = "scenario.executed"
	TypeRegistryUpdated  = "scenario.registry.updated"
	TypePauseUpdated     = "scenario.pause.updated"
)

type ScenarioAdded struct {
	Owner  [20]byte
	ID     uint64
	Asset  [20]byte
	Amount *big.Int
}

func (ScenarioAdded) EventType() string { return TypeScenarioAdded }

func (e ScenarioAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeScenarioAdded,
		Attributes: map[string]string{
			"owner":  hex.EncodeToString(e.Owner[:]),
			"id":     strconv.FormatUint(e.ID, 10),
			"asset":  hex.EncodeToString(e.Asset[:]),
			"amount": formatAmount(e.Amount),
		},
	}
}

type ScenarioRemoved struct {
	Owner  [20]byte
	ID     uint64
	Asset  [20]byte
	Amount *big.Int
}

func (ScenarioRemoved) EventType() string { return TypeScenarioRemoved }

func (e ScenarioRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeScenarioRemoved,
		Attributes: map[string]string{
			"owner":  hex.EncodeToString(e.Owner[:]),
			"id":     strconv.FormatUint(e.ID, 10),
			"asset":  hex.EncodeToString(e.Asset[:]),
			"amount": formatAmount(e.Amount),
		},
	}
}

type ScenarioExecuted struct {
	Owner       [20]byte
	Actor       [20]byte
	ID          uint64
	ScriptIndex uint32
}

func (ScenarioExecuted) EventType() string { return TypeScenarioExecuted }

func (e ScenarioExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeScenarioExecuted,
		Attributes: map[string]string{
			"owner":  hex.EncodeToString(e.Owner[:]),
			"actor":  hex.EncodeToString(e.Actor[:]),
			"id":     strconv.FormatUint(e.ID, 10),
			"script": strconv.FormatUint(uint64(e.ScriptIndex), 10),
		},
	}
}

// RegistryUpdated reports a manager-driven flip of a collaborator allow-list
// entry. Kind is "source" or "executor".
type RegistryUpdated struct {
	Kind       string
	Addr       [20]byte
	Registered bool
}

func (RegistryUpdated) EventType() string { return TypeRegistryUpdated }

func (e RegistryUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRegistryUpdated,
		Attributes: map[string]string{
			"kind":       e.Kind,
			"address":    hex.EncodeToString(e.Addr[:]),
			"registered": strconv.FormatBool(e.Registered),
		},
	}
}

type PauseUpdated struct {
	Paused bool
}

func (PauseUpdated) EventType() string { return TypePauseUpdated }

func (e PauseUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePauseUpdated,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

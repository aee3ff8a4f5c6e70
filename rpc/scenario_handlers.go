package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"flowvault/native/scenario"
)

type scriptJSON struct {
	Mode    string       `json:"mode"`
	Sources []sourceJSON `json:"sources,omitempty"`
	Actions []actionJSON `json:"actions,omitempty"`
}

type sourceJSON struct {
	Validator string `json:"validator"`
	Kind      uint8  `json:"kind"`
	Input     string `json:"input,omitempty"`
	Condition string `json:"condition,omitempty"`
}

type actionJSON struct {
	Executor string `json:"executor"`
	Input    string `json:"input,omitempty"`
}

type scenarioJSON struct {
	ID      uint64       `json:"id"`
	Owner   string       `json:"owner"`
	Actor   string       `json:"actor"`
	Asset   string       `json:"asset"`
	Amount  string       `json:"amount"`
	Scripts []scriptJSON `json:"scripts"`
}

type scenarioAddParams struct {
	Caller  string       `json:"caller"`
	Actor   string       `json:"actor"`
	Asset   string       `json:"asset"`
	Amount  string       `json:"amount"`
	Scripts []scriptJSON `json:"scripts"`
}

type scenarioIDParams struct {
	Caller string `json:"caller,omitempty"`
	ID     uint64 `json:"id"`
}

type scenarioExecuteParams struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
	ID     uint64 `json:"id"`
	Script uint32 `json:"script"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type pauseParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type registryParams struct {
	Caller     string `json:"caller,omitempty"`
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
}

type balanceParams struct {
	Asset  string `json:"asset"`
	Holder string `json:"holder"`
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func parsePayload(s string) ([]byte, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, nil
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	return hex.DecodeString(trimmed)
}

func parseTriggerMode(s string) (scenario.TriggerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return scenario.TriggerAll, nil
	case "any":
		return scenario.TriggerAny, nil
	default:
		return 0, fmt.Errorf("invalid trigger mode %q", s)
	}
}

func parseRegistryKind(s string) (scenario.RegistryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source":
		return scenario.RegistrySource, nil
	case "executor":
		return scenario.RegistryExecutor, nil
	default:
		return 0, fmt.Errorf("invalid registry kind %q", s)
	}
}

func parseScripts(in []scriptJSON) ([]scenario.Script, error) {
	out := make([]scenario.Script, 0, len(in))
	for i, script := range in {
		mode, err := parseTriggerMode(script.Mode)
		if err != nil {
			return nil, fmt.Errorf("script %d: %w", i, err)
		}
		parsed := scenario.Script{Mode: mode}
		for j, src := range script.Sources {
			validator, err := parseAddress(src.Validator)
			if err != nil {
				return nil, fmt.Errorf("script %d source %d: %w", i, j, err)
			}
			input, err := parsePayload(src.Input)
			if err != nil {
				return nil, fmt.Errorf("script %d source %d input: %w", i, j, err)
			}
			condition, err := parsePayload(src.Condition)
			if err != nil {
				return nil, fmt.Errorf("script %d source %d condition: %w", i, j, err)
			}
			parsed.Sources = append(parsed.Sources, scenario.SourceRef{
				Validator: validator,
				Kind:      src.Kind,
				Input:     input,
				Condition: condition,
			})
		}
		for j, act := range script.Actions {
			executor, err := parseAddress(act.Executor)
			if err != nil {
				return nil, fmt.Errorf("script %d action %d: %w", i, j, err)
			}
			input, err := parsePayload(act.Input)
			if err != nil {
				return nil, fmt.Errorf("script %d action %d input: %w", i, j, err)
			}
			parsed.Actions = append(parsed.Actions, scenario.ActionRef{Executor: executor, Input: input})
		}
		out = append(out, parsed)
	}
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatPayload(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}

func scenarioToJSON(sc *scenario.Scenario) *scenarioJSON {
	if sc == nil {
		return nil
	}
	out := &scenarioJSON{
		ID:     sc.ID,
		Owner:  formatAddress(sc.Owner),
		Actor:  formatAddress(sc.Actor),
		Asset:  formatAddress(sc.Asset),
		Amount: sc.Amount.String(),
	}
	for _, script := range sc.Scripts {
		sj := scriptJSON{Mode: script.Mode.String()}
		for _, src := range script.Sources {
			sj.Sources = append(sj.Sources, sourceJSON{
				Validator: formatAddress(src.Validator),
				Kind:      src.Kind,
				Input:     formatPayload(src.Input),
				Condition: formatPayload(src.Condition),
			})
		}
		for _, act := range script.Actions {
			sj.Actions = append(sj.Actions, actionJSON{
				Executor: formatAddress(act.Executor),
				Input:    formatPayload(act.Input),
			})
		}
		out.Scripts = append(out.Scripts, sj)
	}
	return out
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeEngineError maps the engine's typed errors onto RPC status codes,
// keeping the offending collaborator address visible to the caller.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	var srcRef *scenario.InvalidSourceError
	var actRef *scenario.InvalidExecutorError
	var srcVal *scenario.SourceValidationError
	var actExec *scenario.ActionExecutionError
	switch {
	case errors.Is(err, scenario.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeScenarioNotFound, "not_found", err.Error())
	case errors.Is(err, scenario.ErrNotActor), errors.Is(err, scenario.ErrNotManager):
		writeError(w, http.StatusForbidden, id, codeScenarioForbidden, "forbidden", err.Error())
	case errors.Is(err, scenario.ErrExecutionPaused):
		writeError(w, http.StatusConflict, id, codeScenarioPaused, "paused", err.Error())
	case errors.As(err, &srcRef), errors.As(err, &actRef),
		errors.Is(err, scenario.ErrInvalidActor), errors.Is(err, scenario.ErrInvalidAsset),
		errors.Is(err, scenario.ErrInvalidAmount), errors.Is(err, scenario.ErrNoScripts),
		errors.Is(err, scenario.ErrInvalidScript):
		writeError(w, http.StatusBadRequest, id, codeScenarioInvalid, "invalid_scenario", err.Error())
	case errors.As(err, &srcVal), errors.As(err, &actExec),
		errors.Is(err, scenario.ErrNoValidSources), errors.Is(err, scenario.ErrNonZeroResidue):
		writeError(w, http.StatusConflict, id, codeScenarioExecution, "execution_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

func executionFailureReason(err error) string {
	var srcVal *scenario.SourceValidationError
	var actExec *scenario.ActionExecutionError
	switch {
	case errors.Is(err, scenario.ErrExecutionPaused):
		return "paused"
	case errors.As(err, &srcVal), errors.Is(err, scenario.ErrNoValidSources):
		return "source_validation"
	case errors.As(err, &actExec):
		return "action_execution"
	case errors.Is(err, scenario.ErrNonZeroResidue):
		return "residue"
	default:
		return "other"
	}
}

func (s *Server) handleScenarioAdd(w http.ResponseWriter, req *RPCRequest) {
	var params scenarioAddParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	actor, err := parseAddress(params.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	scripts, err := parseScripts(params.Scripts)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	def := &scenario.Scenario{Actor: actor, Asset: asset, Amount: amount, Scripts: scripts}

	s.mu.Lock()
	id, err := s.engine.AddScenario(caller, def)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.RecordAdded()
	s.logger.Info("scenario added", "id", id, "owner", params.Caller)
	writeResult(w, req.ID, map[string]uint64{"id": id})
}

func (s *Server) handleScenarioRemove(w http.ResponseWriter, req *RPCRequest) {
	var params scenarioIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.RemoveScenario(caller, params.ID)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.RecordRemoved()
	s.logger.Info("scenario removed", "id", params.ID, "owner", params.Caller)
	writeResult(w, req.ID, map[string]bool{"removed": true})
}

func (s *Server) handleScenarioExecute(w http.ResponseWriter, req *RPCRequest) {
	var params scenarioExecuteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.Execute(caller, owner, params.ID, params.Script)
	s.mu.Unlock()
	if err != nil {
		s.metrics.RecordExecutionFailure(executionFailureReason(err))
		writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.RecordExecuted()
	s.logger.Info("scenario executed", "id", params.ID, "owner", params.Owner, "script", params.Script)
	writeResult(w, req.ID, map[string]bool{"executed": true})
}

func (s *Server) handleScenarioGet(w http.ResponseWriter, req *RPCRequest) {
	var params scenarioIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sc, ok, err := s.engine.GetScenario(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeScenarioNotFound, "not_found", params.ID)
		return
	}
	writeResult(w, req.ID, scenarioToJSON(sc))
}

func (s *Server) handleScenarioListByOwner(w http.ResponseWriter, req *RPCRequest) {
	var params ownerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	wrappers, err := s.engine.ScenariosByOwner(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]*scenarioJSON, 0, len(wrappers))
	for _, wrapper := range wrappers {
		out = append(out, scenarioToJSON(wrapper.Scenario))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleScenarioIDsByOwner(w http.ResponseWriter, req *RPCRequest) {
	var params ownerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	ids, err := s.engine.ScenarioIDsByOwner(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ids)
}

func (s *Server) handleScenarioCounter(w http.ResponseWriter, req *RPCRequest) {
	counter, err := s.engine.Counter()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"counter": counter})
}

func (s *Server) handleScenarioSetPaused(w http.ResponseWriter, req *RPCRequest) {
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.Registry().SetExecutionPaused(caller, params.Paused)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("execution pause updated", "paused", params.Paused)
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
}

func (s *Server) handleScenarioGetPaused(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, map[string]bool{"paused": s.engine.Registry().ExecutionPaused()})
}

func (s *Server) handleScenarioUpdateRegistry(w http.ResponseWriter, req *RPCRequest) {
	var params registryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	kind, err := parseRegistryKind(params.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.Registry().Update(caller, kind, addr, params.Registered)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("registry updated", "kind", params.Kind, "address", params.Address, "registered", params.Registered)
	writeResult(w, req.ID, map[string]bool{"registered": params.Registered})
}

func (s *Server) handleScenarioCheckRegistry(w http.ResponseWriter, req *RPCRequest) {
	var params registryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	kind, err := parseRegistryKind(params.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	registered := false
	switch kind {
	case scenario.RegistrySource:
		registered = s.engine.Registry().SourceRegistered(addr)
	case scenario.RegistryExecutor:
		registered = s.engine.Registry().ExecutorRegistered(addr)
	}
	writeResult(w, req.ID, map[string]bool{"registered": registered})
}

func (s *Server) handleBankBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.bank.BalanceOf(asset, holder)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": balance.String()})
}

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowvault/core/state"
	"flowvault/native/bank"
	"flowvault/native/scenario"
	"flowvault/storage"
)

var (
	testManager = fillAddr(0xAA)
	testVault   = fillAddr(0xFE)
	testOwner   = fillAddr(0x01)
	testActor   = fillAddr(0x02)
	testAsset   = fillAddr(0x03)
	testSource  = fillAddr(0x10)
	testSink    = fillAddr(0x20)
	testPayee   = fillAddr(0x30)
)

func fillAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func hexAddr(addr [20]byte) string {
	return formatAddress(addr)
}

type passValidator struct{}

func (passValidator) Validate(uint8, []byte, []byte) error { return nil }

type payoutExecutor struct {
	bank  *bank.Ledger
	payee [20]byte
}

func (p payoutExecutor) Execute(bal scenario.Balance, _ []byte) (scenario.Balance, error) {
	if err := p.bank.Transfer(bal.Asset, testSink, p.payee, bal.Amount); err != nil {
		return scenario.Balance{}, err
	}
	return scenario.Balance{}, nil
}

func newTestServer(t *testing.T) (*Server, *bank.Ledger) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(manager)
	registry := scenario.NewRegistry(testManager)
	registry.SetState(manager)

	engine := scenario.NewEngine()
	engine.SetState(manager)
	engine.SetBank(ledger)
	engine.SetRegistry(registry)
	engine.SetVault(testVault)
	engine.BindSource(testSource, passValidator{})
	engine.BindExecutor(testSink, payoutExecutor{bank: ledger, payee: testPayee})

	if err := registry.Update(testManager, scenario.RegistrySource, testSource, true); err != nil {
		t.Fatalf("register source: %v", err)
	}
	if err := registry.Update(testManager, scenario.RegistryExecutor, testSink, true); err != nil {
		t.Fatalf("register executor: %v", err)
	}
	if err := ledger.Mint(testAsset, testOwner, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return NewServer(engine, ledger, slog.Default()), ledger
}

func call(t *testing.T, srv *Server, method string, params interface{}) *RPCResponse {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func mustResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func addScenario(t *testing.T, srv *Server) uint64 {
	t.Helper()
	resp := call(t, srv, "scenario_add", scenarioAddParams{
		Caller: hexAddr(testOwner),
		Actor:  hexAddr(testActor),
		Asset:  hexAddr(testAsset),
		Amount: "250",
		Scripts: []scriptJSON{{
			Mode:    "all",
			Sources: []sourceJSON{{Validator: hexAddr(testSource), Kind: 1}},
			Actions: []actionJSON{{Executor: hexAddr(testSink)}},
		}},
	})
	var result struct {
		ID uint64 `json:"id"`
	}
	mustResult(t, resp, &result)
	return result.ID
}

func TestRPCAddAndGetScenario(t *testing.T) {
	srv, ledger := newTestServer(t)
	id := addScenario(t, srv)

	vaultBal, err := ledger.BalanceOf(testAsset, testVault)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if vaultBal.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("vault balance = %s, want 250", vaultBal)
	}

	resp := call(t, srv, "scenario_get", scenarioIDParams{ID: id})
	var got scenarioJSON
	mustResult(t, resp, &got)
	if got.ID != id || got.Owner != hexAddr(testOwner) || got.Amount != "250" {
		t.Fatalf("unexpected scenario payload: %+v", got)
	}
	if len(got.Scripts) != 1 || got.Scripts[0].Mode != "all" {
		t.Fatalf("unexpected scripts payload: %+v", got.Scripts)
	}
}

func TestRPCAddRejectsMalformedParams(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, "scenario_add", scenarioAddParams{
		Caller: "not-hex",
		Actor:  hexAddr(testActor),
		Asset:  hexAddr(testAsset),
		Amount: "250",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("want invalid params error, got %+v", resp.Error)
	}

	resp = call(t, srv, "scenario_add", scenarioAddParams{
		Caller:  hexAddr(testOwner),
		Actor:   hexAddr(testActor),
		Asset:   hexAddr(testAsset),
		Amount:  "250",
		Scripts: []scriptJSON{{Mode: "sometimes"}},
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("want invalid params for bad mode, got %+v", resp.Error)
	}
}

func TestRPCAddRejectsUnregisteredCollaborator(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, "scenario_add", scenarioAddParams{
		Caller: hexAddr(testOwner),
		Actor:  hexAddr(testActor),
		Asset:  hexAddr(testAsset),
		Amount: "250",
		Scripts: []scriptJSON{{
			Mode:    "all",
			Sources: []sourceJSON{{Validator: hexAddr(fillAddr(0x99)), Kind: 1}},
			Actions: []actionJSON{{Executor: hexAddr(testSink)}},
		}},
	})
	if resp.Error == nil || resp.Error.Code != codeScenarioInvalid {
		t.Fatalf("want scenario invalid error, got %+v", resp.Error)
	}
}

func TestRPCExecuteScenario(t *testing.T) {
	srv, ledger := newTestServer(t)
	id := addScenario(t, srv)

	resp := call(t, srv, "scenario_execute", scenarioExecuteParams{
		Caller: hexAddr(testActor),
		Owner:  hexAddr(testOwner),
		ID:     id,
	})
	var result struct {
		Executed bool `json:"executed"`
	}
	mustResult(t, resp, &result)
	if !result.Executed {
		t.Fatalf("expected executed=true")
	}

	payeeBal, err := ledger.BalanceOf(testAsset, testPayee)
	if err != nil {
		t.Fatalf("payee balance: %v", err)
	}
	if payeeBal.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("payee balance = %s, want 250", payeeBal)
	}

	resp = call(t, srv, "scenario_get", scenarioIDParams{ID: id})
	if resp.Error == nil || resp.Error.Code != codeScenarioNotFound {
		t.Fatalf("executed scenario should be gone, got %+v", resp.Error)
	}
}

func TestRPCExecuteForbiddenForWrongActor(t *testing.T) {
	srv, _ := newTestServer(t)
	id := addScenario(t, srv)

	resp := call(t, srv, "scenario_execute", scenarioExecuteParams{
		Caller: hexAddr(testOwner),
		Owner:  hexAddr(testOwner),
		ID:     id,
	})
	if resp.Error == nil || resp.Error.Code != codeScenarioForbidden {
		t.Fatalf("want forbidden error, got %+v", resp.Error)
	}
}

func TestRPCRemoveScenarioRefunds(t *testing.T) {
	srv, ledger := newTestServer(t)
	id := addScenario(t, srv)

	resp := call(t, srv, "scenario_remove", scenarioIDParams{Caller: hexAddr(testOwner), ID: id})
	var result struct {
		Removed bool `json:"removed"`
	}
	mustResult(t, resp, &result)

	ownerBal, err := ledger.BalanceOf(testAsset, testOwner)
	if err != nil {
		t.Fatalf("owner balance: %v", err)
	}
	if ownerBal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("owner balance = %s, want full refund of 1000", ownerBal)
	}

	resp = call(t, srv, "scenario_remove", scenarioIDParams{Caller: hexAddr(testOwner), ID: id})
	if resp.Error == nil || resp.Error.Code != codeScenarioNotFound {
		t.Fatalf("second removal should report not found, got %+v", resp.Error)
	}
}

func TestRPCPauseGatesExecution(t *testing.T) {
	srv, _ := newTestServer(t)
	id := addScenario(t, srv)

	resp := call(t, srv, "scenario_setPaused", pauseParams{Caller: hexAddr(testManager), Paused: true})
	var pauseResult struct {
		Paused bool `json:"paused"`
	}
	mustResult(t, resp, &pauseResult)
	if !pauseResult.Paused {
		t.Fatalf("expected paused=true")
	}

	resp = call(t, srv, "scenario_execute", scenarioExecuteParams{
		Caller: hexAddr(testActor),
		Owner:  hexAddr(testOwner),
		ID:     id,
	})
	if resp.Error == nil || resp.Error.Code != codeScenarioPaused {
		t.Fatalf("want paused error, got %+v", resp.Error)
	}

	resp = call(t, srv, "scenario_getPaused", struct{}{})
	mustResult(t, resp, &pauseResult)
	if !pauseResult.Paused {
		t.Fatalf("pause query should report true")
	}
}

func TestRPCPauseRequiresManager(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, "scenario_setPaused", pauseParams{Caller: hexAddr(testOwner), Paused: true})
	if resp.Error == nil || resp.Error.Code != codeScenarioForbidden {
		t.Fatalf("want forbidden error, got %+v", resp.Error)
	}
}

func TestRPCRegistryRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	candidate := fillAddr(0x77)

	resp := call(t, srv, "scenario_checkRegistry", registryParams{Kind: "source", Address: hexAddr(candidate)})
	var result struct {
		Registered bool `json:"registered"`
	}
	mustResult(t, resp, &result)
	if result.Registered {
		t.Fatalf("candidate should start unregistered")
	}

	resp = call(t, srv, "scenario_updateRegistry", registryParams{
		Caller:     hexAddr(testManager),
		Kind:       "source",
		Address:    hexAddr(candidate),
		Registered: true,
	})
	mustResult(t, resp, &result)

	resp = call(t, srv, "scenario_checkRegistry", registryParams{Kind: "source", Address: hexAddr(candidate)})
	mustResult(t, resp, &result)
	if !result.Registered {
		t.Fatalf("candidate should be registered after update")
	}
}

func TestRPCOwnerListingsAndCounter(t *testing.T) {
	srv, _ := newTestServer(t)
	first := addScenario(t, srv)
	second := addScenario(t, srv)

	resp := call(t, srv, "scenario_idsByOwner", ownerParams{Owner: hexAddr(testOwner)})
	var ids []uint64
	mustResult(t, resp, &ids)
	if len(ids) != 2 {
		t.Fatalf("want 2 ids, got %v", ids)
	}
	seen := map[uint64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[first] || !seen[second] {
		t.Fatalf("ids %v missing %d or %d", ids, first, second)
	}

	resp = call(t, srv, "scenario_listByOwner", ownerParams{Owner: hexAddr(testOwner)})
	var listed []scenarioJSON
	mustResult(t, resp, &listed)
	if len(listed) != 2 {
		t.Fatalf("want 2 scenarios, got %d", len(listed))
	}

	resp = call(t, srv, "scenario_counter", struct{}{})
	var counter struct {
		Counter uint64 `json:"counter"`
	}
	mustResult(t, resp, &counter)
	if counter.Counter != 2 {
		t.Fatalf("counter = %d, want 2", counter.Counter)
	}
}

func TestRPCBankBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, "bank_balance", balanceParams{Asset: hexAddr(testAsset), Holder: hexAddr(testOwner)})
	var result struct {
		Amount string `json:"amount"`
	}
	mustResult(t, resp, &result)
	if result.Amount != "1000" {
		t.Fatalf("amount = %s, want 1000", result.Amount)
	}
}

func TestRPCUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := call(t, srv, "scenario_frobnicate", struct{}{})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("want method not found, got %+v", resp.Error)
	}
}

func TestRPCRejectsMalformedEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("want parse error, got %+v", resp.Error)
	}
}

func TestRPCHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestServerShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	// before the listener starts there is nothing to stop
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown without listener: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe("127.0.0.1:0")
	}()

	deadline := time.After(2 * time.Second)
	for {
		srv.mu.Lock()
		started := srv.http != nil
		srv.mu.Unlock()
		if started {
			break
		}
		select {
		case err := <-errCh:
			t.Fatalf("listener exited early: %v", err)
		case <-deadline:
			t.Fatalf("listener never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("listener returned %v, want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop after shutdown")
	}
}

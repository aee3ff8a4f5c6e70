package state

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flowvault/core/indexset"
	"flowvault/native/scenario"
)

var (
	scenarioRecordPrefix   = []byte("scenario/record/")
	scenarioOwnerPrefix    = []byte("scenario/owner/")
	scenarioCounterKey     = ethcrypto.Keccak256([]byte("scenario/counter"))
	scenarioActiveKey      = ethcrypto.Keccak256([]byte("scenario/active"))
	scenarioPauseKey       = ethcrypto.Keccak256([]byte("scenario/paused"))
	scenarioRegistryPrefix = []byte("scenario/registry/")
)

func scenarioRecordKey(id uint64) []byte {
	buf := make([]byte, len(scenarioRecordPrefix)+8)
	copy(buf, scenarioRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(scenarioRecordPrefix):], id)
	return ethcrypto.Keccak256(buf)
}

func scenarioOwnerKey(owner [20]byte) []byte {
	buf := make([]byte, len(scenarioOwnerPrefix)+len(owner))
	copy(buf, scenarioOwnerPrefix)
	copy(buf[len(scenarioOwnerPrefix):], owner[:])
	return ethcrypto.Keccak256(buf)
}

func scenarioRegistryKey(kind scenario.RegistryKind, addr [20]byte) []byte {
	name := kind.String()
	buf := make([]byte, len(scenarioRegistryPrefix)+len(name)+1+len(addr))
	copy(buf, scenarioRegistryPrefix)
	copy(buf[len(scenarioRegistryPrefix):], name)
	buf[len(scenarioRegistryPrefix)+len(name)] = '/'
	copy(buf[len(scenarioRegistryPrefix)+len(name)+1:], addr[:])
	return ethcrypto.Keccak256(buf)
}

// ScenarioPut persists the scenario record under its id. Presence of the key
// is the existence marker; no sentinel amount is involved.
func (m *Manager) ScenarioPut(sc *scenario.Scenario) error {
	sanitized, err := scenario.Sanitize(sc)
	if err != nil {
		return err
	}
	return m.put(scenarioRecordKey(sanitized.ID), sanitized)
}

// ScenarioGet retrieves the record stored under id.
func (m *Manager) ScenarioGet(id uint64) (*scenario.Scenario, bool, error) {
	record := new(scenario.Scenario)
	ok, err := m.get(scenarioRecordKey(id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// ScenarioDelete removes the record stored under id.
func (m *Manager) ScenarioDelete(id uint64) error {
	return m.db.Delete(scenarioRecordKey(id))
}

// ScenarioCounter returns the last assigned scenario id; zero means none yet.
func (m *Manager) ScenarioCounter() (uint64, error) {
	var counter uint64
	if _, err := m.get(scenarioCounterKey, &counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// NextScenarioID increments and persists the monotone id counter. Ids start
// at 1 and are never reused.
func (m *Manager) NextScenarioID() (uint64, error) {
	counter, err := m.ScenarioCounter()
	if err != nil {
		return 0, err
	}
	counter++
	if err := m.put(scenarioCounterKey, counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// ownerSet returns the cached id set for the owner, hydrating it from the
// persisted dense list on first access. Callers must hold ownerMu.
func (m *Manager) ownerSet(owner [20]byte) (*indexset.Set, error) {
	if set, ok := m.ownerSets[owner]; ok {
		return set, nil
	}
	var ids []uint64
	if _, err := m.get(scenarioOwnerKey(owner), &ids); err != nil {
		return nil, err
	}
	set := indexset.New()
	for _, id := range ids {
		set.Insert(id)
	}
	m.ownerSets[owner] = set
	return set, nil
}

func (m *Manager) persistOwnerSet(owner [20]byte, set *indexset.Set) error {
	return m.put(scenarioOwnerKey(owner), set.Values())
}

func (m *Manager) adjustActive(delta int64) error {
	count, err := m.ActiveScenarios()
	if err != nil {
		return err
	}
	next := int64(count) + delta
	if next < 0 {
		next = 0
	}
	return m.put(scenarioActiveKey, uint64(next))
}

// ActiveScenarios returns the number of scenarios currently held in custody,
// maintained alongside the owner indexes so restarts can reseed gauges.
func (m *Manager) ActiveScenarios() (uint64, error) {
	var count uint64
	if _, err := m.get(scenarioActiveKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// OwnerIndexAdd records ownership of id by the principal.
func (m *Manager) OwnerIndexAdd(owner [20]byte, id uint64) error {
	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()
	set, err := m.ownerSet(owner)
	if err != nil {
		return err
	}
	if !set.Insert(id) {
		return fmt.Errorf("state: id %d already indexed for owner", id)
	}
	if err := m.persistOwnerSet(owner, set); err != nil {
		return err
	}
	return m.adjustActive(1)
}

// OwnerIndexRemove erases ownership of id by the principal.
func (m *Manager) OwnerIndexRemove(owner [20]byte, id uint64) error {
	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()
	set, err := m.ownerSet(owner)
	if err != nil {
		return err
	}
	if !set.Remove(id) {
		return fmt.Errorf("state: id %d not indexed for owner", id)
	}
	if err := m.persistOwnerSet(owner, set); err != nil {
		return err
	}
	return m.adjustActive(-1)
}

// OwnerIndexContains reports whether the principal owns id.
func (m *Manager) OwnerIndexContains(owner [20]byte, id uint64) (bool, error) {
	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()
	set, err := m.ownerSet(owner)
	if err != nil {
		return false, err
	}
	return set.Contains(id), nil
}

// OwnerIndexList returns the principal's ids in dense index order.
func (m *Manager) OwnerIndexList(owner [20]byte) ([]uint64, error) {
	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()
	set, err := m.ownerSet(owner)
	if err != nil {
		return nil, err
	}
	return set.Values(), nil
}

// RegistrySet overwrites a collaborator allow-list flag.
func (m *Manager) RegistrySet(kind scenario.RegistryKind, addr [20]byte, registered bool) error {
	return m.put(scenarioRegistryKey(kind, addr), registered)
}

// RegistryGet reads a collaborator allow-list flag, false when never set.
func (m *Manager) RegistryGet(kind scenario.RegistryKind, addr [20]byte) (bool, error) {
	var registered bool
	if _, err := m.get(scenarioRegistryKey(kind, addr), &registered); err != nil {
		return false, err
	}
	return registered, nil
}

// PauseSet persists the execution pause flag.
func (m *Manager) PauseSet(paused bool) error {
	return m.put(scenarioPauseKey, paused)
}

// PauseGet reads the execution pause flag, false when never set.
func (m *Manager) PauseGet() (bool, error) {
	var paused bool
	if _, err := m.get(scenarioPauseKey, &paused); err != nil {
		return false, err
	}
	return paused, nil
}

package scenario

import (
	"errors"
	"math/big"
	"testing"
)

func validDefinition() *Scenario {
	return &Scenario{
		Actor:  [20]byte{0x01},
		Asset:  [20]byte{0x02},
		Amount: big.NewInt(10),
		Scripts: []Script{{
			Mode:    TriggerAll,
			Sources: []SourceRef{{Validator: [20]byte{0x03}, Kind: 1, Input: []byte{0xAA}}},
			Actions: []ActionRef{{Executor: [20]byte{0x04}, Input: []byte{0xBB}}},
		}},
	}
}

func TestSanitize(t *testing.T) {
	if _, err := Sanitize(nil); err == nil {
		t.Fatalf("nil scenario must be rejected")
	}

	def := validDefinition()
	def.Amount = nil
	if _, err := Sanitize(def); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: %v", err)
	}

	def = validDefinition()
	def.Amount = big.NewInt(-5)
	if _, err := Sanitize(def); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: %v", err)
	}

	def = validDefinition()
	def.Scripts[0].Mode = TriggerMode(7)
	if _, err := Sanitize(def); err == nil {
		t.Fatalf("invalid trigger mode accepted")
	}

	def = validDefinition()
	sanitized, err := Sanitize(def)
	if err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}
	sanitized.Amount.SetInt64(999)
	sanitized.Scripts[0].Sources[0].Input[0] = 0xFF
	if def.Amount.Int64() != 10 || def.Scripts[0].Sources[0].Input[0] != 0xAA {
		t.Fatalf("sanitize returned a shallow copy")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := validDefinition()
	clone := original.Clone()
	clone.Amount.SetInt64(1)
	clone.Scripts[0].Actions[0].Input[0] = 0x00
	clone.Scripts[0].Sources = append(clone.Scripts[0].Sources, SourceRef{})
	if original.Amount.Int64() != 10 {
		t.Fatalf("clone shares amount")
	}
	if original.Scripts[0].Actions[0].Input[0] != 0xBB {
		t.Fatalf("clone shares action payload")
	}
	if len(original.Scripts[0].Sources) != 1 {
		t.Fatalf("clone shares script slices")
	}
}

func TestBalanceZero(t *testing.T) {
	if !(Balance{}).Zero() {
		t.Fatalf("empty balance should be terminal")
	}
	if !(Balance{Amount: big.NewInt(0)}).Zero() {
		t.Fatalf("zero amount with zero asset should be terminal")
	}
	if (Balance{Asset: [20]byte{0x01}}).Zero() {
		t.Fatalf("non-null asset must not be terminal")
	}
	if (Balance{Amount: big.NewInt(1)}).Zero() {
		t.Fatalf("non-zero amount must not be terminal")
	}
}

func TestTriggerModeStrings(t *testing.T) {
	if TriggerAll.String() != "all" || TriggerAny.String() != "any" {
		t.Fatalf("unexpected mode strings: %s %s", TriggerAll, TriggerAny)
	}
	if TriggerMode(9).Valid() {
		t.Fatalf("out-of-range mode reported valid")
	}
}

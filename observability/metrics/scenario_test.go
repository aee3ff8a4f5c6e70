package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestScenarioSingleton(t *testing.T) {
	if Scenario() != Scenario() {
		t.Fatalf("Scenario() must return the same registry")
	}
}

func TestSetEscrowedSeedsGauge(t *testing.T) {
	m := Scenario()

	m.SetEscrowed(42)
	if got := testutil.ToFloat64(m.escrowTotal); got != 42 {
		t.Fatalf("gauge = %v, want 42", got)
	}

	m.RecordAdded()
	if got := testutil.ToFloat64(m.escrowTotal); got != 43 {
		t.Fatalf("gauge = %v after add, want 43", got)
	}
	m.RecordExecuted()
	m.RecordRemoved()
	if got := testutil.ToFloat64(m.escrowTotal); got != 41 {
		t.Fatalf("gauge = %v after execute+remove, want 41", got)
	}

	m.SetEscrowed(0)
}

package models

import (
	"errors"
	"reflect"
	"testing"
)

func pipelineCode(t *testing.T, err error) string {
	t.Helper()
	var pe *PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PipelineError, got %T: %v", err, err)
	}
	return pe.Code
}

func TestSynthesisContextReserveIsWriteOnce(t *testing.T) {
	sc := NewSynthesisContext("req-1", NewPrompt("flood", nil))
	desc := AgentDescriptor{ID: AgentRetrieval, Priority: 3}

	if err := sc.Reserve(desc); err != nil {
		t.Fatalf("first Reserve failed: %v", err)
	}
	err := sc.Reserve(desc)
	if err == nil {
		t.Fatal("second Reserve for the same agent should fail")
	}
	if code := pipelineCode(t, err); code != "SLOT_ALREADY_RESERVED" {
		t.Errorf("code = %q, want SLOT_ALREADY_RESERVED", code)
	}
}

func TestSynthesisContextSettle(t *testing.T) {
	sc := NewSynthesisContext("req-1", NewPrompt("flood", nil))
	if err := sc.Reserve(AgentDescriptor{ID: AgentRetrieval}); err != nil {
		t.Fatal(err)
	}

	err := sc.Settle(AgentForecast, NewFailureResult(AgentForecast, FailureReasonTimeout))
	if code := pipelineCode(t, err); code != "SLOT_NOT_RESERVED" {
		t.Errorf("settling unreserved slot: code = %q, want SLOT_NOT_RESERVED", code)
	}

	result := NewTextResult(AgentRetrieval, nil)
	if err := sc.Settle(AgentRetrieval, result); err != nil {
		t.Fatalf("first Settle failed: %v", err)
	}
	if !sc.Settled(AgentRetrieval) {
		t.Error("Settled() = false after Settle")
	}

	err = sc.Settle(AgentRetrieval, NewFailureResult(AgentRetrieval, FailureReasonPanic))
	if code := pipelineCode(t, err); code != "SLOT_ALREADY_SETTLED" {
		t.Errorf("second settle: code = %q, want SLOT_ALREADY_SETTLED", code)
	}

	// The first write survives.
	got, _ := sc.Result(AgentRetrieval)
	if got != result {
		t.Error("settled result was overwritten")
	}
}

func TestSynthesisContextPreservesInvocationOrder(t *testing.T) {
	sc := NewSynthesisContext("req-1", NewPrompt("flood", nil))
	order := []string{AgentRetrieval, AgentForecast, AgentWebSearch}
	for _, id := range order {
		if err := sc.Reserve(AgentDescriptor{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	// Settle out of order; iteration order must not change.
	for i := len(order) - 1; i >= 0; i-- {
		if err := sc.Settle(order[i], NewTextResult(order[i], nil)); err != nil {
			t.Fatal(err)
		}
	}

	if got := sc.AgentIDs(); !reflect.DeepEqual(got, order) {
		t.Errorf("AgentIDs() = %v, want %v", got, order)
	}

	results := sc.Results()
	for i, result := range results {
		if result.AgentID != order[i] {
			t.Errorf("Results()[%d].AgentID = %s, want %s", i, result.AgentID, order[i])
		}
	}
}

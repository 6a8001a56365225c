package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBacktestMetricsMarshalFinite(t *testing.T) {
	m := BacktestMetrics{TotalReturn: 0.12, SortinoRatio: 1.5}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["sortinoRatio"] != 1.5 {
		t.Errorf("sortinoRatio = %v, want 1.5", decoded["sortinoRatio"])
	}
	if decoded["totalReturn"] != 0.12 {
		t.Errorf("totalReturn = %v, want 0.12", decoded["totalReturn"])
	}
}

func TestBacktestMetricsMarshalInfiniteSortino(t *testing.T) {
	m := BacktestMetrics{TotalReturn: 0.05, SortinoRatio: math.Inf(1)}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Infinite Sortino must still marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	v, ok := decoded["sortinoRatio"]
	if !ok {
		t.Fatal("sortinoRatio field missing")
	}
	if v != nil {
		t.Errorf("sortinoRatio = %v, want null", v)
	}
	if decoded["totalReturn"] != 0.05 {
		t.Errorf("totalReturn = %v, want 0.05", decoded["totalReturn"])
	}
}

func TestBacktestResultMarshalWithInfiniteSortino(t *testing.T) {
	result := BacktestResult{
		ID:      "run-1",
		Status:  StatusCompleted,
		Metrics: &BacktestMetrics{SortinoRatio: math.Inf(1)},
	}

	if _, err := json.Marshal(&result); err != nil {
		t.Fatalf("Result with infinite Sortino must marshal: %v", err)
	}
}

// Package api_test provides tests for the API server.
package api_test

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/internal/api"
	"github.com/solphase/dlmm-backend/internal/data"
	"github.com/solphase/dlmm-backend/internal/strategy"
	"github.com/solphase/dlmm-backend/pkg/types"
)

func setupTestServer(t *testing.T) (*api.Server, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	cache := data.NewCache(8, time.Hour)
	generator := data.NewGenerator(logger, rand.New(rand.NewSource(42)))
	dataSvc := data.NewHistoricalService(logger, cache, nil, generator, true)
	registry := strategy.NewRegistry(logger)

	server := api.NewServer(logger, &types.ServerConfig{
		Host: "localhost",
		Port: 0,
	}, dataSvc, registry)
	ts := httptest.NewServer(server.Router())

	return server, ts
}

func testConfig() *types.BacktestConfig {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &types.BacktestConfig{
		Name: "api test run",
		Market: types.MarketConfig{
			PoolAddress:  "So11111111111111111111111111111111111111112",
			TokenXSymbol: "SOL",
			TokenYSymbol: "USDC",
		},
		Timeframe: types.TimeframeConfig{
			StartDate: start,
			EndDate:   start.Add(24 * time.Hour),
			Interval:  types.Interval1h,
		},
		Capital: types.CapitalConfig{
			InitialAmount: decimal.NewFromInt(1000),
			Currency:      "USDC",
		},
		Costs: types.CostConfig{
			GasPrice:       decimal.NewFromFloat(0.05),
			Slippage:       decimal.NewFromFloat(0.001),
			TransactionFee: decimal.NewFromFloat(0.1),
		},
		Strategy: types.StrategyConfig{ID: "hold"},
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", result["status"])
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/strategies")
	if err != nil {
		t.Fatalf("Strategies request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var result struct {
		Strategies []string `json:"strategies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	found := map[string]bool{}
	for _, id := range result.Strategies {
		found[id] = true
	}
	if !found["hold"] || !found["threshold-rebalance"] {
		t.Errorf("Expected built-in strategies, got %v", result.Strategies)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/data/history/testpool?interval=1h")
	if err != nil {
		t.Fatalf("History request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var histData types.HistoricalData
	if err := json.NewDecoder(resp.Body).Decode(&histData); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(histData.PricePoints) == 0 {
		t.Error("Expected price points in synthetic history")
	}
	if histData.Metadata.Source != types.DataSourceMock {
		t.Errorf("Expected mock source, got %s", histData.Metadata.Source)
	}
}

func TestValidateEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	config := testConfig()
	config.Capital.InitialAmount = decimal.NewFromInt(-5)

	body, _ := json.Marshal(config)
	resp, err := http.Post(ts.URL+"/api/v1/backtest/validate", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Validate request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var validation types.ValidationResult
	if err := json.NewDecoder(resp.Body).Decode(&validation); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if validation.IsValid {
		t.Error("Expected invalid config to fail validation")
	}
	if len(validation.Errors) == 0 {
		t.Error("Expected validation errors")
	}
}

func TestRunBacktestRejectsInvalidConfig(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	config := testConfig()
	config.Market.PoolAddress = ""

	body, _ := json.Marshal(config)
	resp, err := http.Post(ts.URL+"/api/v1/backtest/run", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Run request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestRunBacktestLifecycle(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(testConfig())
	resp, err := http.Post(ts.URL+"/api/v1/backtest/run", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Run request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}

	var accepted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if accepted.ID == "" {
		t.Fatal("Expected a backtest id")
	}
	if accepted.Status != string(types.StatusRunning) {
		t.Errorf("Expected running status, got %s", accepted.Status)
	}

	// Poll until the background run finishes.
	deadline := time.Now().Add(10 * time.Second)
	var result types.BacktestResult
	for {
		getResp, err := http.Get(ts.URL + "/api/v1/backtest/" + accepted.ID)
		if err != nil {
			t.Fatalf("Get request failed: %v", err)
		}
		err = json.NewDecoder(getResp.Body).Decode(&result)
		getResp.Body.Close()
		if err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if result.Status == types.StatusCompleted || result.Status == types.StatusError {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Backtest did not finish, last status %s", result.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if result.Status != types.StatusCompleted {
		t.Fatalf("Expected completed status, got %s", result.Status)
	}
	if result.Metrics == nil {
		t.Error("Expected metrics in completed result")
	}
	if len(result.TimeSeriesData) == 0 {
		t.Error("Expected time series data")
	}
}

func TestGetBacktestNotFound(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/backtest/no-such-id")
	if err != nil {
		t.Fatalf("Get request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestCancelBacktestNotFound(t *testing.T) {
	_, ts := setupTestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/backtest/no-such-id/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("Cancel request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

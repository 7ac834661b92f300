package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinsaga/coinsaga/pkg/api/handlers"
	"github.com/coinsaga/coinsaga/pkg/api/models"
	"github.com/coinsaga/coinsaga/pkg/eventbus"
	"github.com/coinsaga/coinsaga/pkg/logger"
	"github.com/coinsaga/coinsaga/pkg/saga"
	"github.com/coinsaga/coinsaga/pkg/service"
	"github.com/coinsaga/coinsaga/pkg/transaction"
)

type testEnv struct {
	router       http.Handler
	transactions *transaction.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stderr",
	})

	states := saga.NewMemoryStateStore()
	transactions := transaction.NewMemoryStore()
	bus := eventbus.NewMemoryBus()

	publisher, err := eventbus.NewPublisher("test-node", bus, eventbus.DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	orchestrator, err := saga.NewOrchestrator(states, transactions, publisher, time.Minute, log, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	svc, err := service.NewTransactionService(transactions, orchestrator, log)
	if err != nil {
		t.Fatalf("NewTransactionService() error = %v", err)
	}

	router := NewRouter(log, &Handlers{
		Transaction: handlers.NewTransactionHandler(svc, log),
		Health:      handlers.NewHealthHandler(),
	})
	return &testEnv{router: router, transactions: transactions}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func createRequestBody() map[string]any {
	return map[string]any{
		"asset_id":   "asset-btc",
		"kind":       "buy",
		"quantity":   "2",
		"unit_price": "100.50",
	}
}

func TestCreateTransactionRequiresUserHeader(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/transactions", "", createRequestBody())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/transactions", "user-1", createRequestBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.TransactionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID == "" || resp.SagaID == "" {
		t.Fatalf("expected generated ids, got %+v", resp)
	}
	if resp.Status != string(transaction.StatusPending) {
		t.Fatalf("expected pending status, got %s", resp.Status)
	}
	if !resp.TotalValue.Equal(decimal.RequireFromString("201")) {
		t.Fatalf("expected total 201, got %s", resp.TotalValue)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing asset", func(b map[string]any) { delete(b, "asset_id") }},
		{"bad kind", func(b map[string]any) { b["kind"] = "short" }},
		{"zero quantity", func(b map[string]any) { b["quantity"] = "0" }},
		{"negative price", func(b map[string]any) { b["unit_price"] = "-3" }},
		{"quantity below minimum", func(b map[string]any) { b["quantity"] = "0.000000001" }},
		{"price below minimum", func(b map[string]any) { b["unit_price"] = "0.000000001" }},
		{"total below one cent", func(b map[string]any) {
			b["quantity"] = "0.00000001"
			b["unit_price"] = "0.01"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := createRequestBody()
			tt.mutate(body)
			w := env.do(t, http.MethodPost, "/api/v1/transactions", "user-1", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetTransactionScopedToOwner(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/transactions", "user-1", createRequestBody())
	var created models.TransactionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	w = env.do(t, http.MethodGet, "/api/v1/transactions/"+created.ID, "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// Another user cannot see or probe the record.
	w = env.do(t, http.MethodGet, "/api/v1/transactions/"+created.ID, "user-2", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign record, got %d", w.Code)
	}
}

func TestListTransactionsFiltersByAsset(t *testing.T) {
	env := newTestEnv(t)

	first := createRequestBody()
	env.do(t, http.MethodPost, "/api/v1/transactions", "user-1", first)
	second := createRequestBody()
	second["asset_id"] = "asset-eth"
	env.do(t, http.MethodPost, "/api/v1/transactions", "user-1", second)

	w := env.do(t, http.MethodGet, "/api/v1/transactions?asset_id=asset-eth", "user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list models.TransactionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if list.Total != 1 || len(list.Transactions) != 1 {
		t.Fatalf("expected one eth transaction, got %+v", list)
	}
	if list.Transactions[0].AssetID != "asset-eth" {
		t.Fatalf("wrong asset: %s", list.Transactions[0].AssetID)
	}
}

func TestDeleteTransactionRefusesPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodPost, "/api/v1/transactions", "user-1", createRequestBody())
	var created models.TransactionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/transactions/"+created.ID, "user-1", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending row, got %d: %s", w.Code, w.Body.String())
	}

	if err := env.transactions.UpdateStatus(ctx, created.ID, transaction.StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	w = env.do(t, http.MethodDelete, "/api/v1/transactions/"+created.ID, "user-1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/v1/transactions/"+created.ID, "user-1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /ready, got %d", w.Code)
	}
}

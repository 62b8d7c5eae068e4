package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fraud-feature-store/internal/config"
	"github.com/fraud-feature-store/internal/feature"
	"github.com/fraud-feature-store/internal/models"
	"github.com/fraud-feature-store/internal/service"
	"github.com/fraud-feature-store/internal/types"
)

// newTestServer builds a server backed by an in-memory feature service.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	featureService := service.NewFeatureService(&service.FeatureServiceConfig{
		Pipeline: feature.NewPipeline(nil),
	})
	decisionService := service.NewDecisionService(config.DecisionConfig{
		MaxDistinctCards:   3,
		VolumeMultiplier:   2.0,
		AmountMultiplier:   2.0,
		MaxCardBinCbk7dPct: 0.5,
	})

	return NewServer(&ServerConfig{
		Host:           "localhost",
		Port:           "0",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    30 * time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, featureService, decisionService)
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func txnBody(id string, userID int64, date string, amount string, hasCbk bool) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id":     id,
		"user_id":            userID,
		"card_number":        "411111******1111",
		"merchant_id":        100,
		"device_id":          200,
		"transaction_date":   date,
		"transaction_amount": amount,
		"has_cbk":            hasCbk,
	}
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health returned status %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want %q", body["status"], "healthy")
	}
}

func TestHandleIngestTransaction(t *testing.T) {
	server := newTestServer(t)

	rec := postJSON(t, server, "/api/transactions", txnBody("t1", 1, "2025-09-01T10:00:00Z", "100.00", false))
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest returned status %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var vector models.FeatureVector
	if err := json.Unmarshal(rec.Body.Bytes(), &vector); err != nil {
		t.Fatalf("failed to decode vector: %v", err)
	}
	if vector.TransactionID != "t1" {
		t.Errorf("transaction_id = %q, want %q", vector.TransactionID, "t1")
	}
	if vector.TxnsByUserLast1h != 0 {
		t.Errorf("txns_by_user_last_1h = %d, want 0", vector.TxnsByUserLast1h)
	}
}

func TestHandleIngestTransactionGeneratesID(t *testing.T) {
	server := newTestServer(t)

	body := txnBody("", 1, "2025-09-01T10:00:00Z", "100.00", false)
	rec := postJSON(t, server, "/api/transactions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest returned status %d: %s", rec.Code, rec.Body.String())
	}

	var vector models.FeatureVector
	if err := json.Unmarshal(rec.Body.Bytes(), &vector); err != nil {
		t.Fatalf("failed to decode vector: %v", err)
	}
	if vector.TransactionID == "" {
		t.Error("expected a generated transaction_id")
	}
}

func TestHandleIngestTransactionMalformed(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing user id",
			body: txnBody("t1", 0, "2025-09-01T10:00:00Z", "100.00", false),
		},
		{
			name: "missing date",
			body: txnBody("t1", 1, "0001-01-01T00:00:00Z", "100.00", false),
		},
		{
			name: "negative amount",
			body: txnBody("t1", 1, "2025-09-01T10:00:00Z", "-5", false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, server, "/api/transactions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error.Code != "MALFORMED_TRANSACTION" {
				t.Errorf("error code = %q, want MALFORMED_TRANSACTION", errResp.Error.Code)
			}
		})
	}
}

func TestHandleIngestBatch(t *testing.T) {
	server := newTestServer(t)

	rec := postJSON(t, server, "/api/transactions/batch", map[string]interface{}{
		"transactions": []map[string]interface{}{
			txnBody("t2", 1, "2025-09-01T11:00:00Z", "50.00", false),
			txnBody("t1", 1, "2025-09-01T10:00:00Z", "100.00", false),
			txnBody("bad", 0, "2025-09-01T12:00:00Z", "10.00", false),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch returned status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Processed int                     `json:"processed"`
		Skipped   int                     `json:"skipped"`
		Features  []*models.FeatureVector `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Processed != 2 {
		t.Errorf("processed = %d, want 2", resp.Processed)
	}
	if resp.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", resp.Skipped)
	}
	if len(resp.Features) != 2 || resp.Features[0].TransactionID != "t1" {
		t.Errorf("expected chronological replay starting at t1, got %+v", resp.Features)
	}
}

func TestHandleEvaluateTransaction(t *testing.T) {
	server := newTestServer(t)

	// A prior chargeback in unbounded reach is still invisible under the
	// default legacy lifetime window, so drop it inside the 7d window.
	rec := postJSON(t, server, "/api/transactions", txnBody("t1", 1, "2025-09-01T10:00:00Z", "100.00", true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup ingest failed: %s", rec.Body.String())
	}

	rec = postJSON(t, server, "/api/transactions/evaluate", txnBody("t2", 1, "2025-09-01T11:00:00Z", "50.00", false))
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate returned status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Decision models.Decision       `json:"decision"`
		Features *models.FeatureVector `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Decision.Recommendation != types.RecommendationDeny {
		t.Errorf("recommendation = %q, want deny (user has chargeback history)", resp.Decision.Recommendation)
	}
	if resp.Features == nil || resp.Features.UserCbkCountLifetimePercent != 0.5 {
		t.Errorf("expected lifetime chargeback ratio 0.5, got %+v", resp.Features)
	}
}

func TestHandleGetUserFeatures(t *testing.T) {
	server := newTestServer(t)

	rec := postJSON(t, server, "/api/transactions", txnBody("t1", 42, "2025-09-01T10:00:00Z", "100.00", false))
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup ingest failed: %s", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/42/features", nil)
	recGet := httptest.NewRecorder()
	server.Router().ServeHTTP(recGet, req)

	if recGet.Code != http.StatusOK {
		t.Fatalf("get features returned status %d: %s", recGet.Code, recGet.Body.String())
	}

	var vector models.FeatureVector
	if err := json.Unmarshal(recGet.Body.Bytes(), &vector); err != nil {
		t.Fatalf("failed to decode vector: %v", err)
	}
	if vector.UserID != 42 {
		t.Errorf("user_id = %d, want 42", vector.UserID)
	}
}

func TestHandleGetUserFeaturesErrors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{
			name: "unknown user",
			path: "/api/users/999/features",
			want: http.StatusNotFound,
		},
		{
			name: "non-numeric id",
			path: "/api/users/abc/features",
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			server.Router().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	featureService := service.NewFeatureService(&service.FeatureServiceConfig{
		Pipeline: feature.NewPipeline(nil),
	})
	server := NewServer(&ServerConfig{
		Host:           "localhost",
		Port:           "0",
		RateLimitRPS:   1,
		RateLimitBurst: 2,
	}, featureService, service.NewDecisionService(config.DecisionConfig{}))

	var lastCode int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-User-ID", "limited-user")
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want %d", lastCode, http.StatusTooManyRequests)
	}

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-User-ID", fmt.Sprintf("other-user-%d", time.Now().UnixNano()))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", rec.Code, http.StatusOK)
	}
}

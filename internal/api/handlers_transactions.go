package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fraud-feature-store/internal/models"
)

// handleIngestTransaction handles POST /api/transactions - Ingest a transaction
func (s *Server) handleIngestTransaction(w http.ResponseWriter, r *http.Request) {
	var txn models.Transaction
	if err := parseJSONBody(r, &txn); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	// Callers without their own identifiers get one assigned.
	if txn.TransactionID == "" {
		txn.TransactionID = uuid.New().String()
	}

	vector, err := s.featureService.IngestTransaction(r.Context(), &txn)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, vector)
}

// handleIngestBatch handles POST /api/transactions/batch - Ingest a batch
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transactions []*models.Transaction `json:"transactions"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if len(req.Transactions) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Transactions are required", nil)
		return
	}

	for _, txn := range req.Transactions {
		if txn != nil && txn.TransactionID == "" {
			txn.TransactionID = uuid.New().String()
		}
	}

	vectors, err := s.featureService.IngestBatch(r.Context(), req.Transactions)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"processed": len(vectors),
		"skipped":   len(req.Transactions) - len(vectors),
		"features":  vectors,
	})
}

// handleEvaluateTransaction handles POST /api/transactions/evaluate - Ingest
// a transaction and return an approve/deny recommendation alongside its
// feature vector
func (s *Server) handleEvaluateTransaction(w http.ResponseWriter, r *http.Request) {
	var txn models.Transaction
	if err := parseJSONBody(r, &txn); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if txn.TransactionID == "" {
		txn.TransactionID = uuid.New().String()
	}

	vector, err := s.featureService.IngestTransaction(r.Context(), &txn)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	decision := s.decisionService.Evaluate(&txn, vector)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"decision": decision,
		"features": vector,
	})
}

// handleGetUserFeatures handles GET /api/users/:id/features - Latest feature
// vector for a user
func (s *Server) handleGetUserFeatures(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	userID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "User ID must be an integer", nil)
		return
	}

	vector, err := s.featureService.GetUserFeatures(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, vector)
}

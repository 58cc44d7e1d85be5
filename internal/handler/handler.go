package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/netboxlabs/diode/internal/changeset"
	"github.com/netboxlabs/diode/internal/service"
)

// DiodeHandler handles the ingestion and reconciliation API requests
type DiodeHandler struct {
	ingestion   *service.IngestionService
	objectState *service.ObjectStateService
	version     string
}

// NewDiodeHandler creates a new handler
func NewDiodeHandler(ingestion *service.IngestionService, objectState *service.ObjectStateService, version string) *DiodeHandler {
	return &DiodeHandler{
		ingestion:   ingestion,
		objectState: objectState,
		version:     version,
	}
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ApplyChangeSet applies a producer change set atomically
func (h *DiodeHandler) ApplyChangeSet(w http.ResponseWriter, r *http.Request) {
	var cs changeset.ChangeSet
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		h.writeJSON(w, changeset.Result{
			Result: changeset.ResultFailed,
			Errors: []changeset.ChangeError{{
				Fields: changeset.FieldErrors{"change_set": "invalid JSON body"},
			}},
		}, http.StatusBadRequest)
		return
	}

	result, err := h.ingestion.ApplyChangeSet(r.Context(), &cs)
	if err != nil {
		log.Printf("Failed to apply change set %s: %v", cs.ChangeSetID, err)
		h.writeError(w, "Failed to apply change set", err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if result.Result != changeset.ResultSuccess {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, result, status)
}

// ObjectState returns the current state of one entity for reconciliation
func (h *DiodeHandler) ObjectState(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	query := service.ObjectStateQuery{
		ObjectType: params.Get("object_type"),
		Q:          params.Get("q"),
		Filters:    make(map[string]string),
	}
	if raw := params.Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, "Invalid query", "id must be an integer", http.StatusBadRequest)
			return
		}
		query.ID = &id
	}
	for name, vals := range params {
		switch name {
		case "object_type", "id", "q":
			continue
		}
		if len(vals) > 0 {
			query.Filters[name] = vals[0]
		}
	}

	state, err := h.objectState.Get(r.Context(), query)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, "Invalid query", verr.Message, http.StatusBadRequest)
			return
		}
		log.Printf("Failed to get object state: %v", err)
		h.writeError(w, "Failed to get object state", err.Error(), http.StatusInternalServerError)
		return
	}
	if state == nil {
		// Absence is an answer, not an error
		h.writeJSON(w, struct{}{}, http.StatusOK)
		return
	}

	h.writeJSON(w, state, http.StatusOK)
}

// Status reports service liveness and version
func (h *DiodeHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{
		"status":  "ok",
		"version": h.version,
	}, http.StatusOK)
}

func (h *DiodeHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *DiodeHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

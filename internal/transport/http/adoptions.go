package http

import (
	"log/slog"
	"net/http"
	"time"

	"idecide/internal/adoption"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
)

// AdoptionsHandler exposes the consumer adoption surface.
type AdoptionsHandler struct {
	adoptions *adoption.Service
	logger    *slog.Logger
}

func NewAdoptionsHandler(adoptions *adoption.Service, logger *slog.Logger) *AdoptionsHandler {
	return &AdoptionsHandler{adoptions: adoptions, logger: logger}
}

type adoptRequest struct {
	DecisionIDs []string `json:"decisions"`
}

type adoptionResponse struct {
	ID           string    `json:"id"`
	DecisionID   string    `json:"decisionId"`
	AdoptionDate time.Time `json:"adoptionDate"`
}

// Adopt handles POST /adoption/decisions.
func (h *AdoptionsHandler) Adopt(w http.ResponseWriter, r *http.Request) {
	var req adoptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	decisionIDs := make([]id.DecisionID, 0, len(req.DecisionIDs))
	for _, raw := range req.DecisionIDs {
		decisionID, err := id.ParseDecisionID(raw)
		if err != nil {
			writeError(w, h.logger, dErrors.WithFields(dErrors.CodeValidation, "adoption batch is invalid",
				[]dErrors.FieldError{{Field: "decisions", Message: "must contain valid decision ids"}}))
			return
		}
		decisionIDs = append(decisionIDs, decisionID)
	}

	rows, err := h.adoptions.AdoptPatientDecisions(r.Context(), decisionIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]adoptionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, adoptionResponse{
			ID:           row.ID.String(),
			DecisionID:   row.DecisionID.String(),
			AdoptionDate: row.AdoptionDate,
		})
	}
	writeJSON(w, http.StatusCreated, out)
}

// Pending handles GET /adoption/decisions.
func (h *AdoptionsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	var from *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "from must be an RFC 3339 timestamp"))
			return
		}
		from = &parsed
	}
	var typeID *id.DecisionTypeID
	if raw := r.URL.Query().Get("decisionType"); raw != "" {
		parsed, err := id.ParseDecisionTypeID(raw)
		if err != nil {
			writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "decisionType must be a valid id"))
			return
		}
		typeID = &parsed
	}

	pending, err := h.adoptions.PendingDecisions(r.Context(), from, typeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]decisionResponse, 0, len(pending))
	for i := range pending {
		out = append(out, toDecisionResponse(&pending[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idecide/internal/decision"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
)

// DecisionsHandler exposes the decision recording workflow.
type DecisionsHandler struct {
	decisions *decision.Service
	logger    *slog.Logger
}

func NewDecisionsHandler(decisions *decision.Service, logger *slog.Logger) *DecisionsHandler {
	return &DecisionsHandler{decisions: decisions, logger: logger}
}

type recordDecisionRequest struct {
	NHSNumber        string `json:"nhsNumber"`
	VerificationCode string `json:"verificationCode,omitempty"`
	NHSLoginToken    string `json:"nhsLoginToken,omitempty"`
	CaptchaToken     string `json:"captchaToken,omitempty"`

	DecisionTypeID string `json:"decisionTypeId"`
	DecisionChoice string `json:"decisionChoice"`

	ResponsiblePersonGivenName    string `json:"responsiblePersonGivenName,omitempty"`
	ResponsiblePersonSurname      string `json:"responsiblePersonSurname,omitempty"`
	ResponsiblePersonRelationship string `json:"responsiblePersonRelationship,omitempty"`
}

type modifyDecisionRequest struct {
	DecisionChoice string `json:"decisionChoice"`

	ResponsiblePersonGivenName    string `json:"responsiblePersonGivenName,omitempty"`
	ResponsiblePersonSurname      string `json:"responsiblePersonSurname,omitempty"`
	ResponsiblePersonRelationship string `json:"responsiblePersonRelationship,omitempty"`
}

type decisionResponse struct {
	ID             string `json:"id"`
	PatientID      string `json:"patientId"`
	DecisionTypeID string `json:"decisionTypeId"`
	DecisionChoice string `json:"decisionChoice"`

	ResponsiblePersonGivenName    string `json:"responsiblePersonGivenName,omitempty"`
	ResponsiblePersonSurname      string `json:"responsiblePersonSurname,omitempty"`
	ResponsiblePersonRelationship string `json:"responsiblePersonRelationship,omitempty"`

	CreatedDate time.Time `json:"createdDate"`
	UpdatedDate time.Time `json:"updatedDate"`
}

func toDecisionResponse(d *decision.Decision) decisionResponse {
	return decisionResponse{
		ID:                            d.ID.String(),
		PatientID:                     d.PatientID.String(),
		DecisionTypeID:                d.DecisionTypeID.String(),
		DecisionChoice:                string(d.Choice),
		ResponsiblePersonGivenName:    d.ResponsiblePersonGivenName,
		ResponsiblePersonSurname:      d.ResponsiblePersonSurname,
		ResponsiblePersonRelationship: d.ResponsiblePersonRelationship,
		CreatedDate:                   d.CreatedDate,
		UpdatedDate:                   d.UpdatedDate,
	}
}

// Record handles POST /decisions.
func (h *DecisionsHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	typeID, err := id.ParseDecisionTypeID(req.DecisionTypeID)
	if err != nil {
		writeError(w, h.logger, dErrors.WithFields(dErrors.CodeValidation, "decision is invalid",
			[]dErrors.FieldError{{Field: "decisionTypeId", Message: "must be a valid id"}}))
		return
	}
	d, err := h.decisions.RecordDecision(r.Context(), decision.RecordInput{
		NHSNumber:                     req.NHSNumber,
		VerificationCode:              req.VerificationCode,
		NHSLoginToken:                 req.NHSLoginToken,
		CaptchaToken:                  req.CaptchaToken,
		DecisionTypeID:                typeID,
		Choice:                        decision.Choice(req.DecisionChoice),
		ResponsiblePersonGivenName:    req.ResponsiblePersonGivenName,
		ResponsiblePersonSurname:      req.ResponsiblePersonSurname,
		ResponsiblePersonRelationship: req.ResponsiblePersonRelationship,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDecisionResponse(d))
}

// Modify handles PUT /decisions/{decisionID}.
func (h *DecisionsHandler) Modify(w http.ResponseWriter, r *http.Request) {
	decisionID, err := id.ParseDecisionID(chi.URLParam(r, "decisionID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid decision id"))
		return
	}
	var req modifyDecisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.decisions.ModifyDecision(r.Context(), decisionID, decision.ModifyInput{
		Choice:                        decision.Choice(req.DecisionChoice),
		ResponsiblePersonGivenName:    req.ResponsiblePersonGivenName,
		ResponsiblePersonSurname:      req.ResponsiblePersonSurname,
		ResponsiblePersonRelationship: req.ResponsiblePersonRelationship,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(d))
}

// Get handles GET /decisions/{decisionID}.
func (h *DecisionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	decisionID, err := id.ParseDecisionID(chi.URLParam(r, "decisionID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid decision id"))
		return
	}
	d, err := h.decisions.Get(r.Context(), decisionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(d))
}

// ListForPatient handles GET /patients/{patientID}/decisions.
func (h *DecisionsHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid patient id"))
		return
	}
	ds, err := h.decisions.ListForPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]decisionResponse, 0, len(ds))
	for i := range ds {
		out = append(out, toDecisionResponse(&ds[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

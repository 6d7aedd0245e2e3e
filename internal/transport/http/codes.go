package http

import (
	"log/slog"
	"net/http"
	"time"

	"idecide/internal/patient"
	"idecide/internal/verification"
)

// CodesHandler exposes the verification code lifecycle.
type CodesHandler struct {
	codes  *verification.Service
	logger *slog.Logger
}

func NewCodesHandler(codes *verification.Service, logger *slog.Logger) *CodesHandler {
	return &CodesHandler{codes: codes, logger: logger}
}

type issueCodeRequest struct {
	NHSNumber string `json:"nhsNumber"`
	ForceNew  bool   `json:"forceNew"`
}

type submitCodeRequest struct {
	NHSNumber string `json:"nhsNumber"`
	Code      string `json:"code"`
}

// codeStatusResponse reports the patient's code state without the code
// itself; the code only ever travels over the notification channel.
type codeStatusResponse struct {
	PatientID  string     `json:"patientId"`
	ExpiresOn  *time.Time `json:"expiresOn,omitempty"`
	MatchedOn  *time.Time `json:"matchedOn,omitempty"`
	RetryCount int        `json:"retryCount"`
}

func codeStatus(p *patient.Patient) codeStatusResponse {
	return codeStatusResponse{
		PatientID:  p.ID.String(),
		ExpiresOn:  p.ValidationCodeExpiresOn,
		MatchedOn:  p.ValidationCodeMatchedOn,
		RetryCount: p.RetryCount,
	}
}

// Issue handles POST /codes.
func (h *CodesHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueCodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.codes.IssueCode(r.Context(), req.NHSNumber, req.ForceNew)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, codeStatus(p))
}

// Submit handles POST /codes/submissions.
func (h *CodesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitCodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.codes.SubmitCode(r.Context(), req.NHSNumber, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, codeStatus(p))
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idecide/internal/audit"
	"idecide/internal/patient"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
)

// PatientsHandler exposes patient search plus the admin surface.
type PatientsHandler struct {
	patients *patient.Service
	audits   audit.Store
	logger   *slog.Logger
}

func NewPatientsHandler(patients *patient.Service, audits audit.Store, logger *slog.Logger) *PatientsHandler {
	return &PatientsHandler{patients: patients, audits: audits, logger: logger}
}

type searchRequest struct {
	NHSNumber string `json:"nhsNumber"`
}

// patientResponse carries the redacted patient shown during the "is this
// you" confirmation step.
type patientResponse struct {
	ID        string `json:"id"`
	NHSNumber string `json:"nhsNumber"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	PostCode  string `json:"postCode,omitempty"`

	NotificationPreference string     `json:"notificationPreference,omitempty"`
	CodeExpiresOn          *time.Time `json:"codeExpiresOn,omitempty"`
	CodeMatchedOn          *time.Time `json:"codeMatchedOn,omitempty"`
	RetryCount             int        `json:"retryCount"`
}

func toPatientResponse(p *patient.Patient) patientResponse {
	name := p.GivenName
	if p.Surname != "" {
		name += " " + p.Surname
	}
	return patientResponse{
		ID:                     p.ID.String(),
		NHSNumber:              p.NHSNumber,
		Name:                   name,
		Email:                  p.Email,
		Phone:                  p.Phone,
		Address:                p.Address,
		PostCode:               p.PostCode,
		NotificationPreference: string(p.NotificationPreference),
		CodeExpiresOn:          p.ValidationCodeExpiresOn,
		CodeMatchedOn:          p.ValidationCodeMatchedOn,
		RetryCount:             p.RetryCount,
	}
}

// Search handles POST /patients/search. The response is always redacted.
func (h *PatientsHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.patients.Search(r.Context(), req.NHSNumber)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

type registerPatientRequest struct {
	NHSNumber   string `json:"nhsNumber"`
	Title       string `json:"title,omitempty"`
	GivenName   string `json:"givenName"`
	Surname     string `json:"surname"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	PostCode    string `json:"postCode,omitempty"`

	NotificationPreference string `json:"notificationPreference,omitempty"`
}

// Register handles POST /admin/patients.
func (h *PatientsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var dob time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeError(w, h.logger, dErrors.WithFields(dErrors.CodeValidation, "patient is invalid",
				[]dErrors.FieldError{{Field: "dateOfBirth", Message: "must be a YYYY-MM-DD date"}}))
			return
		}
		dob = parsed
	}
	p, err := h.patients.Register(r.Context(), patient.RegisterInput{
		NHSNumber:              req.NHSNumber,
		Title:                  req.Title,
		GivenName:              req.GivenName,
		Surname:                req.Surname,
		Gender:                 req.Gender,
		DateOfBirth:            dob,
		Email:                  req.Email,
		Phone:                  req.Phone,
		Address:                req.Address,
		PostCode:               req.PostCode,
		NotificationPreference: patient.NotificationPreference(req.NotificationPreference),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(p))
}

// Delete handles DELETE /admin/patients/{patientID}.
func (h *PatientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid patient id"))
		return
	}
	if err := h.patients.Delete(r.Context(), patientID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuditTrail handles GET /admin/patients/{patientID}/audit.
func (h *PatientsHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	patientID, err := id.ParsePatientID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid patient id"))
		return
	}
	events, err := h.audits.ListByPatient(r.Context(), patientID)
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeDependency, "could not load audit trail"))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idecide/internal/consumer"
	"idecide/internal/decisiontype"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
)

// AdminHandler exposes the staff surface: consumers and decision types.
type AdminHandler struct {
	consumers *consumer.Service
	types     *decisiontype.Service
	logger    *slog.Logger
}

func NewAdminHandler(consumers *consumer.Service, types *decisiontype.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{consumers: consumers, types: types, logger: logger}
}

type registerConsumerRequest struct {
	Name       string `json:"name"`
	ContactURL string `json:"contactUrl,omitempty"`
}

type consumerResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactURL  string    `json:"contactUrl,omitempty"`
	Active      bool      `json:"active"`
	CreatedDate time.Time `json:"createdDate"`

	// Secret is present only in the registration and rotation responses.
	Secret string `json:"secret,omitempty"`
}

func toConsumerResponse(c *consumer.Consumer, secret string) consumerResponse {
	return consumerResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		ContactURL:  c.ContactURL,
		Active:      c.Active,
		CreatedDate: c.CreatedDate,
		Secret:      secret,
	}
}

// RegisterConsumer handles POST /admin/consumers.
func (h *AdminHandler) RegisterConsumer(w http.ResponseWriter, r *http.Request) {
	var req registerConsumerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, secret, err := h.consumers.Register(r.Context(), req.Name, req.ContactURL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsumerResponse(c, secret))
}

// RotateConsumerSecret handles POST /admin/consumers/{consumerID}/secret.
func (h *AdminHandler) RotateConsumerSecret(w http.ResponseWriter, r *http.Request) {
	consumerID, err := id.ParseConsumerID(chi.URLParam(r, "consumerID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid consumer id"))
		return
	}
	secret, err := h.consumers.RotateSecret(r.Context(), consumerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.consumers.Get(r.Context(), consumerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumerResponse(c, secret))
}

// ListConsumers handles GET /admin/consumers.
func (h *AdminHandler) ListConsumers(w http.ResponseWriter, r *http.Request) {
	cs, err := h.consumers.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]consumerResponse, 0, len(cs))
	for i := range cs {
		out = append(out, toConsumerResponse(&cs[i], ""))
	}
	writeJSON(w, http.StatusOK, out)
}

type decisionTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type decisionTypeResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func toDecisionTypeResponse(d *decisiontype.DecisionType) decisionTypeResponse {
	return decisionTypeResponse{ID: d.ID.String(), Name: d.Name, Description: d.Description}
}

// CreateDecisionType handles POST /admin/decision-types.
func (h *AdminHandler) CreateDecisionType(w http.ResponseWriter, r *http.Request) {
	var req decisionTypeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.types.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDecisionTypeResponse(d))
}

// UpdateDecisionType handles PUT /admin/decision-types/{typeID}.
func (h *AdminHandler) UpdateDecisionType(w http.ResponseWriter, r *http.Request) {
	typeID, err := id.ParseDecisionTypeID(chi.URLParam(r, "typeID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid decision type id"))
		return
	}
	var req decisionTypeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.types.Update(r.Context(), typeID, req.Name, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionTypeResponse(d))
}

// ListDecisionTypes handles GET /decision-types. Citizens see the catalogue
// too, so this route sits outside the admin group.
func (h *AdminHandler) ListDecisionTypes(w http.ResponseWriter, r *http.Request) {
	ds, err := h.types.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]decisionTypeResponse, 0, len(ds))
	for i := range ds {
		out = append(out, toDecisionTypeResponse(&ds[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteDecisionType handles DELETE /admin/decision-types/{typeID}.
func (h *AdminHandler) DeleteDecisionType(w http.ResponseWriter, r *http.Request) {
	typeID, err := id.ParseDecisionTypeID(chi.URLParam(r, "typeID"))
	if err != nil {
		writeError(w, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "invalid decision type id"))
		return
	}
	if err := h.types.Delete(r.Context(), typeID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package http exposes the consent services over REST. Handlers decode and
// validate the wire shapes, delegate to the services, and translate boundary
// errors into the shared response envelope.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "idecide/pkg/domain-errors"
)

// errorResponse is the shared error envelope. Validation failures carry a
// field-to-message map; everything else is an opaque message.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps a boundary error onto the envelope. Errors that never came
// through the domain error layer become opaque 500s so internals do not leak.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var dErr *dErrors.Error
	if !errors.As(err, &dErr) {
		logger.Error("unclassified handler error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	resp := errorResponse{Error: dErr.Message}
	if fields := dErrors.FieldsOf(err); len(fields) > 0 {
		resp.Fields = make(map[string]string, len(fields))
		for _, f := range fields {
			resp.Fields[f.Field] = f.Message
		}
	}
	writeJSON(w, dErrors.ToHTTPStatus(dErr.Code), resp)
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "request body is not valid JSON")
	}
	return nil
}

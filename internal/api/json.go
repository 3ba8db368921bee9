package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"dailybot/pkg/logx"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const maxBodyBytes = 1 << 20

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: unexpected trailing data")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn("could not write response")
	}
}

func (h *Handler) ok(w http.ResponseWriter, message string, data any) {
	h.writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		err = fmt.Errorf("field %q failed validation (%s)", f.Field(), f.Tag())
	}
	h.writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
}

func (h *Handler) notFound(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusNotFound, Response{Success: false, Message: message})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.log.Error("request failed", logx.Err(err))
	h.writeJSON(w, http.StatusInternalServerError, Response{
		Success: false,
		Message: "internal error",
	})
}

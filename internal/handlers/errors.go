package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sifrokapp/sifrok/internal/services"
)

const maxRequestBodyBytes = 1 << 20

// statusForError maps service errors to a status and a message that is safe
// to return. Vendor and store detail never reaches the client.
func statusForError(err error) (int, string) {
	var userErr services.UserError
	switch {
	case errors.As(err, &userErr):
		return http.StatusBadRequest, userErr.Message
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrMappingNotFound),
		errors.Is(err, services.ErrPromotionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrOrderAlreadySubmitted),
		errors.Is(err, services.ErrMappingConflict),
		errors.Is(err, services.ErrPromotionExhausted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrNoMappedItems):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, message := statusForError(err)
	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error(msg, "error", err)
	} else {
		logger.Warn(msg, "error", err, "status", status)
	}
	writeError(w, status, message)
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return services.UserError{Message: fmt.Sprintf("invalid request body: %s", bodyErrorText(err))}
	}
	return nil
}

func bodyErrorText(err error) string {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return "body too large"
	}
	return strings.TrimPrefix(err.Error(), "json: ")
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, services.UserError{Message: fmt.Sprintf("%s must be a valid uuid", name)}
	}
	return id, nil
}

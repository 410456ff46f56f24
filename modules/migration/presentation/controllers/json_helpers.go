package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
	"github.com/iota-uz/legacy-migrator/modules/migration/presentation/controllers/dtos"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
	"github.com/iota-uz/legacy-migrator/pkg/serrors"
)

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, dtos.APIError{
			Code:    domain.ErrInvalidPlan.Code,
			Message: err.Error(),
			Meta:    requestMeta(requestID),
			Issues:  verr.Issues,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrReportNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, locking.ErrLocked):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrMalformedInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidPlan), errors.Is(err, domain.ErrNoParsableFiles):
		status = http.StatusUnprocessableEntity
	}
	code := serrors.Code(err)
	if code == "" || status == http.StatusInternalServerError {
		code = "MIGRATION_INTERNAL"
	}
	writeAPIError(w, status, requestID, code, err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	writeJSON(w, status, dtos.APIError{
		Code:    code,
		Message: message,
		Meta:    requestMeta(requestID),
	})
}

func requestMeta(requestID string) map[string]string {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	return meta
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ensureRequestID(r *http.Request) string {
	conf := configuration.Use()
	v := strings.TrimSpace(r.Header.Get(conf.RequestIDHeader))
	if v != "" {
		return v
	}
	v = uuid.NewString()
	r.Header.Set(conf.RequestIDHeader, v)
	return v
}

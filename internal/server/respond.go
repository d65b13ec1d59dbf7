package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/filestore"
	"github.com/koustreak/dblens/internal/logger"
)

type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
	Code     string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, filestore.ErrNotFound) {
		return http.StatusNotFound
	}
	if errs.IsValidation(err) {
		return http.StatusBadRequest
	}
	switch errs.KindOf(err) {
	case errs.KindConfig:
		return http.StatusInternalServerError
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindTimeout:
		return http.StatusRequestTimeout
	case errs.KindPoolExhausted, errs.KindConnection:
		return http.StatusServiceUnavailable
	case errs.KindQuery:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	if errors.Is(err, filestore.ErrNotFound) {
		return "not_found"
	}
	if errs.IsValidation(err) {
		return "validation"
	}
	if e, ok := errs.As(err); ok {
		return e.Kind.String()
	}
	return "internal"
}

// writeError renders err with credentials redacted.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{
		Error:   errorCode(err),
		Message: logger.RedactError(err),
	}
	if e, ok := errs.As(err); ok {
		body.Provider = e.Provider
		body.Code = e.Code
	}
	writeJSON(w, statusFor(err), body)
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Invalid("body", err.Error())
	}
	return nil
}

package types

import (
	"net/http"

	appErr "github.com/aetherflow/engine/pkg/errors"
)

func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	code := string(appErr.CodeUnknown)
	if e, ok := err.(*appErr.AppError); ok {
		code = string(e.Code)
		return &APIError{Code: code, Message: e.Message}
	}
	return &APIError{Code: code, Message: err.Error()}
}

// StatusForError maps the error taxonomy onto HTTP status codes.
func StatusForError(err error) int {
	e, ok := err.(*appErr.AppError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case appErr.CodeInvalid, appErr.CodeCredentialRejected:
		return http.StatusBadRequest
	case appErr.CodeUnauthorized:
		return http.StatusUnauthorized
	case appErr.CodeForbidden:
		return http.StatusForbidden
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeConflict:
		return http.StatusConflict
	case appErr.CodeUpstream:
		return http.StatusBadGateway
	case appErr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		// decrypt_failed lands here: it signals environment misconfiguration,
		// not caller error.
		return http.StatusInternalServerError
	}
}

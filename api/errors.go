package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"microblog/storage"
)

const codeUnauthenticated = "UNAUTHENTICATED"

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusOf(code storage.Code) int {
	switch code {
	case storage.CodeValidation:
		return http.StatusBadRequest
	case storage.CodeNotFound:
		return http.StatusNotFound
	case storage.CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	rawResponse, _ := json.Marshal(v)
	_, _ = rw.Write(rawResponse)
}

func writeErrorMessage(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, ErrorResponse{Error: msg, Code: code})
}

// writeError maps a storage error onto a status code. Internal details are
// not echoed back.
func (h *HTTPHandler) writeError(rw http.ResponseWriter, r *http.Request, err error) {
	code := storage.CodeOf(err)
	status := statusOf(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	var se *storage.Error
	if errors.As(err, &se) && status != http.StatusInternalServerError {
		msg = se.Message
	}
	writeErrorMessage(rw, status, string(code), msg)
}

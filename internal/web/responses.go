// Package web holds HTTP plumbing shared by every handler package.
//
// responses.go -- JSON response helpers. Error bodies are always {"message": ...}.
package web

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as a JSON body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, struct {
		Message string `json:"message"`
	}{msg})
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	LogError(r, "internal server error", "error", err)
	message(w, http.StatusInternalServerError, "internal server error")
}

// BadRequest returns a 400 JSON response with the given message.
// Use for client input validation failures.
func BadRequest(w http.ResponseWriter, msg string) {
	message(w, http.StatusBadRequest, msg)
}

// Unauthorized returns a 401 JSON response.
// Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, msg string) {
	message(w, http.StatusUnauthorized, msg)
}

// Forbidden returns a 403 JSON response.
func Forbidden(w http.ResponseWriter, msg string) {
	message(w, http.StatusForbidden, msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	message(w, http.StatusNotFound, msg)
}

func Conflict(w http.ResponseWriter, msg string) {
	message(w, http.StatusConflict, msg)
}

// TooManyRequests returns a 429 JSON response.
func TooManyRequests(w http.ResponseWriter, msg string) {
	message(w, http.StatusTooManyRequests, msg)
}

// OK returns a 200 JSON response with the given message.
func OK(w http.ResponseWriter, msg string) {
	message(w, http.StatusOK, msg)
}

// DecodeJSON reads a JSON body of at most 1 MiB into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return DecodeJSONLimit(w, r, v, 1<<20)
}

// DecodeJSONLimit is DecodeJSON with a caller-chosen body limit in bytes.
func DecodeJSONLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return json.NewDecoder(r.Body).Decode(v)
}

package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteError renders the router's error body shape: {"error":"<kind>"}.
func WriteError(w http.ResponseWriter, statusCode int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": kind})
}

// WriteErrorWithDetails renders {"error":"<kind>","details":"<details>"},
// used for upstream_error responses that carry the raw upstream body.
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, kind, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": kind, "details": details})
}

func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "unauthorized")
}

func WriteInvalidRequest(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, "invalid_request")
}

func WriteMissingModel(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, "missing_model")
}

func WriteMissingDeployment(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, "missing_deployment")
}

func WriteProviderNotSupported(w http.ResponseWriter) {
	WriteError(w, http.StatusNotImplemented, "provider_not_supported")
}

func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal_error")
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "DS-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{Code: "DS-API-5020", Message: "Ingestion could not be started. Check the worker and retry."}
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "DS-API-5030", Message: "Ingestion is not available on this instance."}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "DS-DB-5001", Message: "Cache schema is not initialized. Restart the worker and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "DS-DB-5002", Message: "Cache store is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "DS-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		code = "DS-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "DS-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "DS-API-4009"
		msg = "An ingestion run is already in progress."
	case status == http.StatusMethodNotAllowed:
		code = "DS-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	if status == http.StatusBadRequest && err != nil {
		switch {
		case strings.Contains(raw, "at least 2 characters"):
			msg = "Search query must have at least 2 characters."
		case strings.HasPrefix(raw, "invalid "):
			msg = "Invalid query parameter: " + strings.SplitN(strings.TrimPrefix(raw, "invalid "), ":", 2)[0] + "."
		}
	}
	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

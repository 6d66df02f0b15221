package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status    int               `json:"status"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Path      string            `json:"path"`
	RequestID string            `json:"requestId,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func JSONError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	JSON(w, statusCode, newErrorResponse(r, statusCode, message, nil))
}

// JSONValidationError writes a 400 carrying one message per invalid field.
func JSONValidationError(w http.ResponseWriter, r *http.Request, message string, fields map[string]string) {
	JSON(w, http.StatusBadRequest, newErrorResponse(r, http.StatusBadRequest, message, fields))
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Text(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

func newErrorResponse(r *http.Request, statusCode int, message string, fields map[string]string) ErrorResponse {
	return ErrorResponse{
		Status:    statusCode,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
		RequestID: RequestIDFrom(r),
		Errors:    fields,
	}
}

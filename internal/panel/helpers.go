package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/nexus/pkg/schema"
)

const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"message": msg}})
}

// writeFailure maps err onto an HTTP status. Structured errors keep their
// code and details in the body.
func writeFailure(w http.ResponseWriter, err error) {
	var nerr *schema.NexusError
	if !errors.As(err, &nerr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	body := map[string]any{"code": nerr.Code, "message": nerr.Message}
	if len(nerr.Details) > 0 {
		body["details"] = nerr.Details
	}
	writeJSON(w, statusFor(nerr.Code), map[string]any{"error": body})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeExpression:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeInvalidState:
		return http.StatusConflict
	case schema.ErrCodeBusy:
		return http.StatusTooManyRequests
	case schema.ErrCodeGeneration:
		return http.StatusBadGateway
	case schema.ErrCodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody validates the request body against the named schema, then
// decodes it into dst. An empty body is treated as {}.
func (s *Server) decodeBody(r *http.Request, kind string, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "read body").WithCause(err)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateRequest(kind, raw); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

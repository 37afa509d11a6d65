package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/llm"
	"github.com/BaSui01/flowgraph/workflow"
)

// Response is the unified API response envelope.
type Response struct {
	Success   bool        `json:"success"`
	Data      any `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// Encoding failures past this point cannot change the status line.
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a success envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError maps an error to an HTTP status and writes the error
// envelope. Rate-limited upstream failures additionally set Retry-After
// so well-behaved clients back off.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, info := classifyError(err)

	if logger != nil {
		logger.Error("API error",
			zap.String("code", info.Code),
			zap.String("message", info.Message),
			zap.Int("status", status),
			zap.Bool("retryable", info.Retryable),
		)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage writes a simple error envelope with an explicit
// status and code.
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", code),
			zap.String("message", message),
			zap.Int("status", status),
		)
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// classifyError maps workflow and provider errors to an HTTP status and
// a stable error code. Agent failures caused by upstream rate limiting
// surface as 429 so clients can retry; other agent failures are bad
// gateway conditions, and definition problems are the client's fault.
func classifyError(err error) (int, *ErrorInfo) {
	var ve *workflow.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, &ErrorInfo{
			Code:    "WORKFLOW_VALIDATION",
			Message: ve.Error(),
		}
	}

	var ae *workflow.AgentInvocationError
	if errors.As(err, &ae) {
		if llm.IsRateLimited(ae.Err) {
			return http.StatusTooManyRequests, &ErrorInfo{
				Code:      string(llm.ErrRateLimited),
				Message:   ae.Error(),
				Retryable: true,
			}
		}
		return http.StatusBadGateway, &ErrorInfo{
			Code:      "AGENT_INVOCATION",
			Message:   ae.Error(),
			Retryable: true,
		}
	}

	var le *llm.Error
	if errors.As(err, &le) {
		status := le.HTTPStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
		return status, &ErrorInfo{
			Code:      string(le.Code),
			Message:   le.Message,
			Retryable: le.Retryable,
		}
	}

	return http.StatusInternalServerError, &ErrorInfo{
		Code:    "INTERNAL",
		Message: err.Error(),
	}
}

// DecodeJSONBody decodes a JSON request body into dst, rejecting
// unknown fields. On failure the error response has already been
// written.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is empty", logger)
		return errors.New("request body is empty")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", logger)
		return err
	}
	return nil
}

// ValidateContentType requires application/json request bodies. On
// failure the error response has already been written.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "application/json; charset=utf-8" {
		WriteErrorMessage(w, http.StatusUnsupportedMediaType, "INVALID_REQUEST",
			"Content-Type must be application/json", logger)
		return false
	}
	return true
}

// ResponseWriter wraps http.ResponseWriter to capture the status code
// for middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w with status capture.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher for SSE streaming support.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

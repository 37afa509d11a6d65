package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/workflow"
)

// WorkflowHandler serves workflow execution requests.
type WorkflowHandler struct {
	service *workflow.Service
	logger  *zap.Logger
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(service *workflow.Service, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		service: service,
		logger:  logger.With(zap.String("component", "workflow_handler")),
	}
}

// ExecuteRequest is the body of POST /api/v1/workflows/execute.
type ExecuteRequest struct {
	Workflow  *workflow.Definition `json:"workflow"`
	Input     string               `json:"input"`
	Streaming bool                 `json:"streaming,omitempty"`
}

// HandleExecute runs a workflow definition against an input message.
// With "streaming": true the response is an SSE stream of engine
// events followed by the final result; otherwise a single JSON
// envelope carrying the output and the full execution trace.
func (h *WorkflowHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "INVALID_REQUEST", "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Workflow == nil {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "workflow is required", h.logger)
		return
	}

	if req.Streaming {
		h.executeStream(w, r, &req)
		return
	}

	start := time.Now()
	res, err := h.service.Execute(r.Context(), req.Workflow, req.Input, false)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("workflow executed",
		zap.String("workflow", req.Workflow.Name),
		zap.Int("steps", len(res.Steps)),
		zap.Duration("duration", time.Since(start)),
	)
	WriteSuccess(w, res)
}

// executeStream runs the workflow while forwarding each engine event to
// the client as an SSE event, then closes the stream with the final
// result (or error) and a [DONE] marker.
func (h *WorkflowHandler) executeStream(w http.ResponseWriter, r *http.Request, req *ExecuteRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, http.StatusInternalServerError, "INTERNAL", "streaming not supported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The service serializes emitter calls, so writing to the response
	// from the emitter is safe.
	ctx := workflow.WithStreamEmitter(r.Context(), func(ev workflow.Event) {
		writeSSE(w, string(ev.Type), ev)
		flusher.Flush()
	})

	res, err := h.service.Execute(ctx, req.Workflow, req.Input, true)
	if err != nil {
		_, info := classifyError(err)
		writeSSE(w, "error", info)
		flusher.Flush()
		return
	}

	writeSSE(w, "result", res)
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// writeSSE writes one SSE event with a JSON payload. Marshaling through
// json.Marshal keeps payload newlines escaped, so the frame stays
// well-formed.
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\n"))
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/viz"
	"github.com/BaSui01/flowgraph/workflow"
)

// VizHandler renders workflow definitions as Mermaid diagrams.
type VizHandler struct {
	logger *zap.Logger
}

// NewVizHandler creates a visualization handler.
func NewVizHandler(logger *zap.Logger) *VizHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VizHandler{logger: logger.With(zap.String("component", "viz_handler"))}
}

// VisualizeRequest is the body of POST /api/v1/workflows/visualize.
type VisualizeRequest struct {
	Workflow *workflow.Definition `json:"workflow"`
}

// VisualizeResponse carries the rendered diagram in both raw Mermaid
// syntax and a self-contained HTML preview page.
type VisualizeResponse struct {
	WorkflowName   string `json:"workflow_name"`
	MermaidDiagram string `json:"mermaid_diagram"`
	HTMLPreview    string `json:"html_preview"`
}

// HandleVisualize renders a workflow definition without executing it.
func (h *VizHandler) HandleVisualize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, "INVALID_REQUEST", "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req VisualizeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Workflow == nil {
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "workflow is required", h.logger)
		return
	}

	h.logger.Info("workflow visualization requested",
		zap.String("workflow", req.Workflow.Name),
		zap.Int("executors", len(req.Workflow.Executors)),
	)

	WriteSuccess(w, VisualizeResponse{
		WorkflowName:   req.Workflow.Name,
		MermaidDiagram: viz.ToMermaid(req.Workflow),
		HTMLPreview:    viz.ToHTML(req.Workflow),
	})
}

// Package handlers contains the HTTP handlers for the flowgraph API:
// workflow execution (with optional SSE streaming), workflow
// visualization, and health/version endpoints, sharing one response
// envelope and error-mapping layer.
package handlers

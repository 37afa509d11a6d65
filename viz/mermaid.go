// Package viz renders workflow definitions as Mermaid diagrams.
package viz

import (
	"fmt"
	"strings"

	"github.com/BaSui01/flowgraph/workflow"
)

// ToMermaid converts a workflow definition to a Mermaid graph TD
// diagram: agent and function nodes are labeled by type, conditional
// edges are dashed with the condition as label, fan edges are thick,
// and the start executor is highlighted.
func ToMermaid(def *workflow.Definition) string {
	lines := []string{"graph TD"}

	for _, exec := range def.Executors {
		label := exec.Name
		switch exec.Type {
		case workflow.ExecutorAgent:
			label = "🤖 " + label
		case workflow.ExecutorFunction:
			label = "⚙️ " + label
		}
		if len(exec.Tools) > 0 {
			shown := exec.Tools
			suffix := ""
			if len(shown) > 3 {
				shown = shown[:3]
				suffix = "..."
			}
			label += fmt.Sprintf("<br/><small>%s%s</small>", strings.Join(shown, ", "), suffix)
		}
		lines = append(lines, fmt.Sprintf("    %s[%q]", nodeID(exec.Name), escapeQuotes(label)))
	}

	for _, edge := range def.Edges {
		style := "-->"
		switch edge.EdgeType {
		case workflow.EdgeConditional:
			style = "-.->"
		case workflow.EdgeFanOut, workflow.EdgeFanIn:
			style = "==>"
		}

		label := ""
		if edge.Condition != nil {
			text := fmt.Sprintf("%s %s %v", edge.Condition.Field, edge.Condition.Operator, edge.Condition.Value)
			label = fmt.Sprintf("|%q|", escapeQuotes(text))
		}

		lines = append(lines, fmt.Sprintf("    %s %s%s %s",
			nodeID(edge.FromExecutor), style, label, nodeID(edge.ToExecutor)))
	}

	lines = append(lines, fmt.Sprintf("    style %s fill:#90EE90,stroke:#333,stroke-width:3px",
		nodeID(def.StartExecutor)))

	return strings.Join(lines, "\n")
}

// ToHTML wraps the diagram in a standalone page that renders it with
// mermaid.js.
func ToHTML(def *workflow.Definition) string {
	diagram := ToMermaid(def)
	name := escapeHTML(def.Name)

	var desc string
	if def.Description != "" {
		desc = fmt.Sprintf("<p>%s</p>\n    ", escapeHTML(def.Description))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>Workflow: %s</title>
    <script type="module">
        import mermaid from 'https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.esm.min.mjs';
        mermaid.initialize({ startOnLoad: true, theme: 'default' });
    </script>
</head>
<body>
    <h1>%s</h1>
    %s<div class="mermaid">
%s
    </div>
</body>
</html>`, name, name, desc, diagram)
}

// nodeID makes an executor name safe as a Mermaid node identifier.
func nodeID(name string) string {
	replacer := strings.NewReplacer(" ", "_", "-", "_", ".", "_")
	return replacer.Replace(name)
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "&quot;")
}

func escapeHTML(s string) string {
	replacer := strings.NewReplacer(`"`, "&quot;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}

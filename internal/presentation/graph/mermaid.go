package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/routing"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedSteps []domain.Step
	CurrentStep  domain.Step
}

const terminalID = "end"

// GenerateMermaid produces a Mermaid flowchart from the routing table.
// It applies semantic styling:
// - Entry: ((Circle))
// - Terminal: (((Double circle)))
// - Record writes: [[Subroutine]]
// - Confirmation: [/Parallelogram/]
// - Default: [Rectangle]
// Contextual routes are labelled token[context].
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(table *routing.Table, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entry := table.Entry()
	for _, step := range table.Steps() {
		opener, closer := shape(step, entry)
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(string(step)), opener, step, closer))
	}
	sb.WriteString(fmt.Sprintf("    %s(((\"%s\")))\n", terminalID, terminalID))

	for _, r := range table.Routes() {
		label := string(r.Token)
		if r.Context != "" {
			label = fmt.Sprintf("%s[%s]", r.Token, r.Context)
		}
		to := terminalID
		if r.To != domain.StepTerminal {
			to = sanitizeMermaidID(string(r.To))
		}
		arrow := fmt.Sprintf("-- \"%s\" -->", strings.ReplaceAll(label, "\"", "'"))
		if r.To == domain.StepFinalize && r.From != domain.StepFinalize {
			// Most steps end in finalize; dotted edges keep the main paths readable.
			arrow = fmt.Sprintf("-. \"%s\" .->", strings.ReplaceAll(label, "\"", "'"))
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(string(r.From)), arrow, to))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, step := range overlay.VisitedSteps {
			safeID := sanitizeMermaidID(string(step))
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentStep != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(string(overlay.CurrentStep))))
		}
	}

	return sb.String()
}

func shape(step, entry domain.Step) (string, string) {
	switch step {
	case entry:
		return "((", "))"
	case domain.StepCreatePatient, domain.StepUpdatePatient, domain.StepDeletePatient:
		return "[[", "]]"
	case domain.StepRequestConfirmation, domain.StepHandleConfirmation:
		return "[/", "/]"
	default:
		return "[", "]"
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}

package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rendis/nexus/pkg/schema"
)

// statusTag returns a short ASCII indicator for a status.
func statusTag(s schema.Status) string {
	switch s {
	case schema.StatusCompleted:
		return "[OK]"
	case schema.StatusError:
		return "[FAIL]"
	case schema.StatusExecuting:
		return "[RUN]"
	case schema.StatusWaiting:
		return "[WAIT]"
	case schema.StatusThinking:
		return "[THINK]"
	case schema.StatusIdle:
		return "[IDLE]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text diagram, one row of boxes per level.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			if node := findNode(model.Nodes, nodeID); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 && len(boxes) > 0 {
			b.WriteString("       │\n")
			b.WriteString("       ▼\n")
		}
	}

	// Edges that do not follow the level order, e.g. the reset loop.
	for _, e := range model.Edges {
		if e.Label == "reset" {
			fmt.Fprintf(&b, "\n%s ─→ %s (%s)\n", e.From, e.To, e.Label)
		}
	}

	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

func makeBox(node *Node) asciiBox {
	content := []string{node.Label}
	if node.Status != nil {
		tag := statusTag(node.Status.Status)
		if node.Status.Changed {
			tag += " *"
		}
		if tag != "" {
			content = append(content, tag)
		}
	}

	maxLen := 0
	for _, line := range content {
		maxLen = max(maxLen, utf8.RuneCountInString(line))
	}
	width := maxLen + 4

	lines := []string{"┌" + strings.Repeat("─", width-2) + "┐"}
	for _, c := range content {
		padded := c + strings.Repeat(" ", maxLen-utf8.RuneCountInString(c))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box.lines))
	}
	for row := 0; row < height; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

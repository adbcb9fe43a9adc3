package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto renders through the mermaid-ascii binary when binDir holds
// one, falling back to RenderASCII.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			if out, err := RenderASCIIViaCLI(ctx, model, binPath); err == nil {
				return out
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, binPath string) (string, error) {
	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI emits edges only, with the status folded into each node
// id, because mermaid-ascii cannot parse labelled node declarations.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	display := make(map[string]string, len(model.Nodes))
	for _, node := range model.Nodes {
		display[node.ID] = cliNodeID(node)
	}
	resolve := func(id string) string {
		if d, ok := display[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", resolve(edge.From), label, resolve(edge.To))
	}
	return b.String()
}

func cliNodeID(node *Node) string {
	id := node.ID
	if node.Status != nil {
		if tag := strings.Trim(statusTag(node.Status.Status), "[]"); tag != "" {
			id += "-" + tag
		}
	}
	return mermaidSafeID(id)
}

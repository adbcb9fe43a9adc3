package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph LR\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	clustered := make(map[string]bool)
	for _, c := range model.Clusters {
		for _, id := range c.NodeIDs {
			clustered[id] = true
		}
	}

	for _, node := range model.Nodes {
		if !clustered[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}
	for _, c := range model.Clusters {
		fmt.Fprintf(&b, "    subgraph %s[%q]\n", mermaidSafeID(c.Name), c.Label)
		for _, id := range c.NodeIDs {
			if node := findNode(model.Nodes, id); node != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(node))
			}
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.Label == "reset" {
			arrow = "-.->"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef suspended fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")

	for _, node := range model.Nodes {
		if node.Status == nil {
			continue
		}
		if cls := statusClass(node.Status.Status); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with a shape per kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := node.Label
	if node.Status != nil && node.Status.Changed {
		label += " *"
	}

	switch node.Kind {
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	case NodeKindPlanner:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindReviewer:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindRelation:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindAttribute:
		return fmt.Sprintf("%s([%q])", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID replaces characters Mermaid does not accept in identifiers.
// "end" is a keyword and gets a suffix.
func mermaidSafeID(id string) string {
	if strings.EqualFold(id, "end") {
		return id + "_node"
	}
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

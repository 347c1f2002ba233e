package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/netviz/pkg/domain"
)

// Overlay contains dynamic state data to highlight on the graph.
type Overlay struct {
	Highlighted []string // node hashes
	Focus       string   // one node hash
}

// GenerateMermaid produces a Mermaid flowchart from a snapshot.
// Groups become subgraphs, edge labels are predicate types, and edge colors other
// than the default become linkStyle lines.
func GenerateMermaid(snap domain.Snapshot, overlay *Overlay) string {
	var sb strings.Builder
	dir := "TD"
	if snap.Options.FlowDirection == domain.FlowRight {
		dir = "LR"
	}
	sb.WriteString("graph " + dir + "\n")

	ids := mermaidIDs(snap.Nodes)
	grouped := make(map[string]bool)
	for _, g := range snap.Groups {
		for _, m := range g.Members {
			grouped[m] = true
		}
	}

	for _, n := range snap.Nodes {
		if grouped[n.Hash] {
			continue
		}
		writeNode(&sb, "    ", ids[n.Hash], n)
	}

	byHash := make(map[string]domain.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		byHash[n.Hash] = n
	}
	for _, g := range snap.Groups {
		sb.WriteString(fmt.Sprintf("    subgraph %s [\" \"]\n", sanitizeMermaidID(g.ID)))
		for _, m := range g.Members {
			if n, ok := byHash[m]; ok {
				writeNode(&sb, "        ", ids[m], n)
			}
		}
		sb.WriteString("    end\n")
	}

	var styles []string
	for i, e := range snap.Links {
		label := strings.ReplaceAll(e.Data.Type, "\"", "'")
		sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", ids[e.Source], label, ids[e.Target]))
		if e.Color != "" && e.Color != "black" {
			styles = append(styles, fmt.Sprintf("    linkStyle %d stroke:%s;\n", i, e.Color))
		}
	}
	for _, s := range styles {
		sb.WriteString(s)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds.
		sb.WriteString("    classDef highlighted fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef focus fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, h := range overlay.Highlighted {
			id, ok := ids[h]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			sb.WriteString(fmt.Sprintf("    class %s highlighted;\n", id))
		}
		if id, ok := ids[overlay.Focus]; ok {
			sb.WriteString(fmt.Sprintf("    class %s focus;\n", id))
		}
	}

	return sb.String()
}

func writeNode(sb *strings.Builder, indent, id string, n domain.Node) {
	lines := make([]string, len(n.Label()))
	for i, l := range n.Label() {
		lines[i] = strings.ReplaceAll(l, "\"", "'")
	}
	sb.WriteString(fmt.Sprintf("%s%s[\"%s\"]\n", indent, id, strings.Join(lines, "<br/>")))
}

// mermaidIDs assigns each hash a safe, unique Mermaid identifier.
func mermaidIDs(nodes []domain.Node) map[string]string {
	ids := make(map[string]string, len(nodes))
	used := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		id := sanitizeMermaidID(n.Hash)
		if id == "" || used[id] {
			id = fmt.Sprintf("%s_%d", id, n.Index)
		}
		used[id] = true
		ids[n.Hash] = id
	}
	return ids
}

func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

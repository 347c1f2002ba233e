package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/fatih/color"
)

var (
	Brand  = color.New(color.FgHiMagenta, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Good   = color.New(color.FgGreen)
	Bad    = color.New(color.FgRed)
)

// SummaryMarkdown describes a snapshot as a markdown document: counts, nodes,
// links and groups.
func SummaryMarkdown(snap domain.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("# Graph\n\n")
	fmt.Fprintf(&sb, "Generation **%d**: %d nodes, %d links, %d groups. Layout `%s` (flow `%s`).\n\n",
		snap.Generation, len(snap.Nodes), len(snap.Links), len(snap.Groups),
		snap.Options.Type, snap.Options.FlowDirection)

	if len(snap.Nodes) > 0 {
		sb.WriteString("## Nodes\n\n| hash | label | x | y |\n|---|---|---|---|\n")
		for _, n := range snap.Nodes {
			fmt.Fprintf(&sb, "| %s | %s | %.0f | %.0f |\n",
				cell(n.Hash), cell(strings.Join(n.Label(), " ")), n.X, n.Y)
		}
		sb.WriteString("\n")
	}

	if len(snap.Links) > 0 {
		sb.WriteString("## Links\n\n| subject | predicate | object | color |\n|---|---|---|---|\n")
		for _, e := range snap.Links {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", cell(e.Source), cell(e.Data.Type), cell(e.Target), e.Color)
		}
		sb.WriteString("\n")
	}

	if len(snap.Groups) > 0 {
		sb.WriteString("## Groups\n\n")
		for _, g := range snap.Groups {
			members := append([]string(nil), g.Members...)
			sort.Strings(members)
			fmt.Fprintf(&sb, "- `%s`: %s\n", g.ID, strings.Join(members, ", "))
		}
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// Table writes an aligned table with a dimmed header.
func Table(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if i < len(widths) && len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	header, sep := "  ", "  "
	for i, h := range headers {
		header += fmt.Sprintf("%-*s  ", widths[i], h)
		sep += strings.Repeat("─", widths[i]) + "  "
	}
	Subtle.Fprintln(w, strings.TrimRight(header, " "))
	Subtle.Fprintln(w, strings.TrimRight(sep, " "))

	for _, row := range rows {
		line := "  "
		for i, c := range row {
			if i < len(widths) {
				line += fmt.Sprintf("%-*s  ", widths[i], c)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

// StatusIcon returns a colored check or cross.
func StatusIcon(ok bool) string {
	if ok {
		return Good.Sprint("✓")
	}
	return Bad.Sprint("✗")
}

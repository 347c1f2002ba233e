package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/netviz"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *netviz.Graph) {
	t.Helper()
	g, err := netviz.New(netviz.WithoutLayout())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return NewServer(g, nil), g
}

func call(t *testing.T, s *Server, name string, args map[string]any) (string, bool) {
	t.Helper()
	tool := s.MCPServer().GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)

	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestTools_AddAndQuery(t *testing.T) {
	s, g := newTestServer(t)

	out, isErr := call(t, s, "add_triplet", map[string]any{
		"subject":      "a",
		"predicate":    "likes",
		"object":       "b",
		"object_label": []any{"Bee"},
		"data":         map[string]any{"color": "red"},
	})
	require.False(t, isErr, out)
	var r Result
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, Result{OK: true, Generation: r.Generation, Nodes: 2, Links: 1}, r)
	assert.Equal(t, "red", g.Links()[0].Data.Data["color"])

	out, isErr = call(t, s, "add_triplet", map[string]any{"subject": "a", "predicate": "likes", "object": "b"})
	assert.True(t, isErr)
	assert.Contains(t, out, "duplicate edge")

	out, _ = call(t, s, "has_node", map[string]any{"hash": "b"})
	assert.Contains(t, out, `"exists":true`)
	out, _ = call(t, s, "has_node", map[string]any{"hash": "z"})
	assert.Contains(t, out, `"exists":false`)

	_, isErr = call(t, s, "add_edge", map[string]any{"subject": "a", "predicate": "p", "object": "z"})
	assert.False(t, isErr)
	assert.Len(t, g.Links(), 1)
}

func TestTools_NodesAndGroups(t *testing.T) {
	s, g := newTestServer(t)

	_, isErr := call(t, s, "add_node", map[string]any{"hash": "a", "label": []any{"A"}, "x": 5.0, "y": 6.0})
	require.False(t, isErr)
	_, isErr = call(t, s, "add_node", map[string]any{"hash": "b"})
	require.False(t, isErr)
	assert.Equal(t, 5.0, g.Nodes()[0].X)

	out, isErr := call(t, s, "merge_group", map[string]any{"anchor": "a", "member": "b"})
	require.False(t, isErr, out)
	assert.Contains(t, out, `"group":"`)

	_, isErr = call(t, s, "merge_group", map[string]any{"anchor": "a", "member": "a"})
	assert.True(t, isErr)

	_, isErr = call(t, s, "remove_node", map[string]any{"hash": "b"})
	require.False(t, isErr)
	assert.False(t, g.HasNode("b"))

	out, isErr = call(t, s, "remove_node", map[string]any{"hash": "b"})
	assert.True(t, isErr)
	assert.Contains(t, out, "no such node")
}

func TestTools_SaveRestore(t *testing.T) {
	s, g := newTestServer(t)
	require.NoError(t, g.AddTriplet(context.Background(), domain.NewFact("a", "likes", "b")))

	saved, isErr := call(t, s, "save_graph", nil)
	require.False(t, isErr)
	assert.Contains(t, saved, `"triplets":[{"subject":"a","predicate":"likes","object":"b"}]`)

	other, g2 := newTestServer(t)
	_, isErr = call(t, other, "restore_graph", map[string]any{"graph": saved})
	require.False(t, isErr)
	assert.Len(t, g2.Links(), 1)

	_, isErr = call(t, other, "restore_graph", map[string]any{"graph": "{"})
	assert.True(t, isErr)
}

func TestTools_LayoutAndExport(t *testing.T) {
	s, g := newTestServer(t)
	require.NoError(t, g.AddTriplet(context.Background(), domain.NewFact("a", "likes", "b")))

	_, isErr := call(t, s, "set_layout", map[string]any{"flow_direction": "x", "edge_length": 60.0})
	require.False(t, isErr)
	assert.Equal(t, domain.FlowRight, g.LayoutOptions().FlowDirection)
	assert.Equal(t, 60.0, g.LayoutOptions().EdgeLength)

	_, isErr = call(t, s, "set_layout", map[string]any{"layout_type": "spiral"})
	assert.True(t, isErr)

	out, isErr := call(t, s, "export_mermaid", map[string]any{"focus": "a"})
	require.False(t, isErr)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "class a focus;")
}

func TestResources(t *testing.T) {
	s, g := newTestServer(t)
	require.NoError(t, g.AddTriplet(context.Background(), domain.NewFact("a", "likes", "b")))

	contents, err := s.readGraph(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents)
	assert.Equal(t, graphURI, text.URI)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Len(t, snap.Nodes, 2)

	contents, err = s.readMermaid(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	assert.Contains(t, contents[0].(mcp.TextResourceContents).Text, `a -- "likes" --> b`)
}

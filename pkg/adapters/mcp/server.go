package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/netviz"
	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/internal/presentation/graph"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	graphURI   = "netviz://graph"
	mermaidURI = "netviz://graph/mermaid"
)

// Graph is the part of *netviz.Graph exposed as MCP tools.
type Graph interface {
	AddNode(ctx context.Context, nodes ...domain.NodeInput) error
	AddTriplet(ctx context.Context, fact domain.Fact) error
	AddEdge(ctx context.Context, fact domain.Fact) error
	RemoveNode(ctx context.Context, hash string, onDone func()) error
	MergeIntoGroup(ctx context.Context, anchor, member string) (string, error)
	HasNode(hash string) bool
	SaveGraph(ctx context.Context) (*domain.SavedGraph, error)
	RestoreGraph(ctx context.Context, saved *domain.SavedGraph) error
	SetLayoutOptions(ctx context.Context, opts domain.LayoutOptions) error
	LayoutOptions() domain.LayoutOptions
	Snapshot() domain.Snapshot
}

var _ Graph = (*netviz.Graph)(nil)

// Server exposes a Graph as an MCP server.
type Server struct {
	graph     Graph
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance. A nil logger discards output.
func NewServer(g Graph, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		graph:     g,
		logger:    logger,
		mcpServer: server.NewMCPServer("netviz-mcp", strings.TrimSpace(netviz.Version), server.WithRecovery()),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FactArgs names a fact by hashes.
type FactArgs struct {
	Subject      string         `json:"subject"`
	Predicate    string         `json:"predicate"`
	Object       string         `json:"object"`
	SubjectLabel []string       `json:"subject_label,omitempty"`
	ObjectLabel  []string       `json:"object_label,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func (a FactArgs) fact() domain.Fact {
	f := domain.NewFact(a.Subject, a.Predicate, a.Object)
	f.Subject.Shortname = a.SubjectLabel
	f.Object.Shortname = a.ObjectLabel
	if len(a.Data) > 0 {
		f.Predicate.Data = a.Data
	}
	return f
}

type NodeArgs struct {
	Hash  string   `json:"hash"`
	Label []string `json:"label,omitempty"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
}

type HashArgs struct {
	Hash string `json:"hash"`
}

type MergeArgs struct {
	Anchor string `json:"anchor"`
	Member string `json:"member"`
}

type RestoreArgs struct {
	Graph string `json:"graph"`
}

type LayoutArgs struct {
	LayoutType    string   `json:"layout_type,omitempty"`
	FlowDirection string   `json:"flow_direction,omitempty"`
	EdgeLength    *float64 `json:"edge_length,omitempty"`
}

// Result is the structured reply of mutating tools.
type Result struct {
	OK         bool   `json:"ok"`
	Generation uint64 `json:"generation"`
	Nodes      int    `json:"nodes"`
	Links      int    `json:"links"`
	Group      string `json:"group,omitempty"`
	Exists     *bool  `json:"exists,omitempty"`
}

func (s *Server) result() Result {
	snap := s.graph.Snapshot()
	return Result{OK: true, Generation: snap.Generation, Nodes: len(snap.Nodes), Links: len(snap.Links)}
}

func factTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject node hash")),
		mcp.WithString("predicate", mcp.Required(), mcp.Description("Relationship type")),
		mcp.WithString("object", mcp.Required(), mcp.Description("Object node hash")),
		mcp.WithArray("subject_label", mcp.WithStringItems(), mcp.Description("Display lines for the subject")),
		mcp.WithArray("object_label", mcp.WithStringItems(), mcp.Description("Display lines for the object")),
		mcp.WithObject("data", mcp.Description("Extra predicate fields, e.g. {\"color\": \"red\"}")),
		mcp.WithOutputSchema[Result](),
	)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		factTool("add_triplet", "Store a subject-predicate-object fact, registering both nodes."),
		mcp.NewStructuredToolHandler(s.handleAddTriplet),
	)
	s.mcpServer.AddTool(
		factTool("add_edge", "Store a fact only if both nodes already exist; otherwise do nothing."),
		mcp.NewStructuredToolHandler(s.handleAddEdge),
	)

	s.mcpServer.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Register a node. Missing coordinates default to the layout center."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Unique node hash")),
		mcp.WithArray("label", mcp.WithStringItems(), mcp.Description("Display lines")),
		mcp.WithNumber("x", mcp.Description("Initial x")),
		mcp.WithNumber("y", mcp.Description("Initial y")),
		mcp.WithOutputSchema[Result](),
	), mcp.NewStructuredToolHandler(s.handleAddNode))

	s.mcpServer.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove a node and every fact that references it."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Node hash")),
		mcp.WithOutputSchema[Result](),
	), mcp.NewStructuredToolHandler(s.handleRemoveNode))

	s.mcpServer.AddTool(mcp.NewTool("merge_group",
		mcp.WithDescription("Move member into the visual group holding anchor."),
		mcp.WithString("anchor", mcp.Required(), mcp.Description("Node whose group receives the member")),
		mcp.WithString("member", mcp.Required(), mcp.Description("Node to move")),
		mcp.WithOutputSchema[Result](),
	), mcp.NewStructuredToolHandler(s.handleMerge))

	s.mcpServer.AddTool(mcp.NewTool("has_node",
		mcp.WithDescription("Report whether a node hash is registered."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Node hash")),
		mcp.WithOutputSchema[Result](),
	), mcp.NewStructuredToolHandler(s.handleHasNode))

	s.mcpServer.AddTool(mcp.NewTool("save_graph",
		mcp.WithDescription("Serialize the graph as triplets plus node positions."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		saved, err := s.graph.SaveGraph(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(saved)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("restore_graph",
		mcp.WithDescription("Replay a graph produced by save_graph. Facts already stored are skipped."),
		mcp.WithString("graph", mcp.Required(), mcp.Description("JSON output of save_graph")),
		mcp.WithOutputSchema[Result](),
	), mcp.NewStructuredToolHandler(s.handleRestore))

	s.mcpServer.AddTool(mcp.NewTool("set_layout",
		mcp.WithDescription("Change layout options and restart the layout."),
		mcp.WithString("layout_type", mcp.Enum(string(domain.LayoutFlow), string(domain.LayoutLinkDistance), string(domain.LayoutJaccard))),
		mcp.WithString("flow_direction", mcp.Enum(domain.FlowDown, domain.FlowRight)),
		mcp.WithNumber("edge_length", mcp.Description("Ideal link length")),
		mcp.WithOutputSchema[Result](),
	), mcp.NewStructuredToolHandler(s.handleLayout))

	s.mcpServer.AddTool(mcp.NewTool("export_mermaid",
		mcp.WithDescription("Render the graph as a Mermaid flowchart."),
		mcp.WithString("focus", mcp.Description("Node hash to highlight")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var overlay *graph.Overlay
		if focus := request.GetString("focus", ""); focus != "" {
			overlay = &graph.Overlay{Focus: focus}
		}
		return mcp.NewToolResultText(graph.GenerateMermaid(s.graph.Snapshot(), overlay)), nil
	})
}

func (s *Server) handleAddTriplet(ctx context.Context, _ mcp.CallToolRequest, args FactArgs) (Result, error) {
	if err := s.graph.AddTriplet(ctx, args.fact()); err != nil {
		return Result{}, err
	}
	return s.result(), nil
}

func (s *Server) handleAddEdge(ctx context.Context, _ mcp.CallToolRequest, args FactArgs) (Result, error) {
	if err := s.graph.AddEdge(ctx, args.fact()); err != nil {
		return Result{}, err
	}
	return s.result(), nil
}

func (s *Server) handleAddNode(ctx context.Context, _ mcp.CallToolRequest, args NodeArgs) (Result, error) {
	in := domain.NodeInput{Hash: args.Hash, Shortname: args.Label, X: args.X, Y: args.Y}
	if err := s.graph.AddNode(ctx, in); err != nil {
		return Result{}, err
	}
	return s.result(), nil
}

func (s *Server) handleRemoveNode(ctx context.Context, _ mcp.CallToolRequest, args HashArgs) (Result, error) {
	if err := s.graph.RemoveNode(ctx, args.Hash, nil); err != nil {
		return Result{}, err
	}
	return s.result(), nil
}

func (s *Server) handleMerge(ctx context.Context, _ mcp.CallToolRequest, args MergeArgs) (Result, error) {
	id, err := s.graph.MergeIntoGroup(ctx, args.Anchor, args.Member)
	if err != nil {
		return Result{}, err
	}
	r := s.result()
	r.Group = id
	return r, nil
}

func (s *Server) handleHasNode(_ context.Context, _ mcp.CallToolRequest, args HashArgs) (Result, error) {
	r := s.result()
	exists := s.graph.HasNode(args.Hash)
	r.Exists = &exists
	return r, nil
}

func (s *Server) handleRestore(ctx context.Context, _ mcp.CallToolRequest, args RestoreArgs) (Result, error) {
	var saved domain.SavedGraph
	if err := json.Unmarshal([]byte(args.Graph), &saved); err != nil {
		return Result{}, fmt.Errorf("%w: graph is not valid JSON: %v", domain.ErrValidation, err)
	}
	if err := s.graph.RestoreGraph(ctx, &saved); err != nil {
		return Result{}, err
	}
	return s.result(), nil
}

func (s *Server) handleLayout(ctx context.Context, _ mcp.CallToolRequest, args LayoutArgs) (Result, error) {
	opts := s.graph.LayoutOptions()
	if args.LayoutType != "" {
		opts.Type = domain.LayoutType(args.LayoutType)
	}
	if args.FlowDirection != "" {
		opts.FlowDirection = args.FlowDirection
	}
	if args.EdgeLength != nil {
		opts.EdgeLength = *args.EdgeLength
	}
	if err := s.graph.SetLayoutOptions(ctx, opts); err != nil {
		return Result{}, err
	}
	return s.result(), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Current graph snapshot",
		mcp.WithMIMEType("application/json"),
	), s.readGraph)

	s.mcpServer.AddResource(mcp.NewResource(mermaidURI, "Current graph as Mermaid",
		mcp.WithMIMEType("text/plain"),
	), s.readMermaid)
}

func (s *Server) readGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.Marshal(s.graph.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      graphURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

func (s *Server) readMermaid(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      mermaidURI,
			MIMEType: "text/plain",
			Text:     graph.GenerateMermaid(s.graph.Snapshot(), nil),
		},
	}, nil
}

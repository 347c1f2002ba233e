package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/netviz"
	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/internal/presentation/graph"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/observability"
	"github.com/aretw0/netviz/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// maxBody bounds request bodies.
const maxBody = 4 << 20

// Graph is the part of *netviz.Graph the API serves.
type Graph interface {
	AddNode(ctx context.Context, nodes ...domain.NodeInput) error
	AddTriplet(ctx context.Context, fact domain.Fact) error
	AddEdge(ctx context.Context, fact domain.Fact) error
	RemoveNode(ctx context.Context, hash string, onDone func()) error
	MergeIntoGroup(ctx context.Context, anchor, member string) (string, error)
	HasNode(hash string) bool
	SaveGraph(ctx context.Context) (*domain.SavedGraph, error)
	RestoreGraph(ctx context.Context, saved *domain.SavedGraph) error
	Resync(ctx context.Context) error
	NeedsResync() bool
	Restart(ctx context.Context) error
	Recenter()
	SetLayoutOptions(ctx context.Context, opts domain.LayoutOptions) error
	LayoutOptions() domain.LayoutOptions
	Snapshot() domain.Snapshot
}

var _ Graph = (*netviz.Graph)(nil)

// Server serves a Graph over JSON and a websocket feed.
type Server struct {
	Graph   Graph
	Feed    *Feed
	Saved   ports.GraphStore
	Markers *graph.MarkerSet
	Metrics http.Handler
	Logger  *slog.Logger

	upgrader websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithFeed enables GET /ws. The feed's hooks must be wired into the graph.
func WithFeed(f *Feed) Option {
	return func(s *Server) { s.Feed = f }
}

// WithGraphStore enables the /graphs endpoints.
func WithGraphStore(gs ports.GraphStore) Option {
	return func(s *Server) { s.Saved = gs }
}

// WithMarkers makes SVG exports reuse the graph's marker set.
func WithMarkers(m *graph.MarkerSet) Option {
	return func(s *Server) { s.Markers = m }
}

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.Metrics = h }
}

// WithLogger sets the logger for request failures and feed disconnects.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.Logger = logger }
}

// NewHandler creates the HTTP handler for g.
func NewHandler(g Graph, opts ...Option) http.Handler {
	s := &Server{
		Graph:  g,
		Logger: logging.NewNop(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/graph", func(r chi.Router) {
		r.Get("/", s.GetSnapshot)
		r.Get("/mermaid", s.GetMermaid)
		r.Get("/svg", s.GetSVG)
		r.Get("/saved", s.GetSaved)
		r.Put("/saved", s.PutSaved)
		r.Post("/resync", s.PostResync)
	})

	r.Post("/nodes", s.PostNodes)
	r.Get("/nodes/{hash}", s.GetNode)
	r.Delete("/nodes/{hash}", s.DeleteNode)
	r.Post("/triplets", s.PostTriplet)
	r.Post("/edges", s.PostEdge)
	r.Post("/groups", s.PostGroup)

	r.Route("/layout", func(r chi.Router) {
		r.Get("/", s.GetLayout)
		r.Put("/", s.PutLayout)
		r.Post("/restart", s.PostRestart)
		r.Post("/recenter", s.PostRecenter)
	})

	if s.Saved != nil {
		r.Route("/graphs", func(r chi.Router) {
			r.Get("/", s.ListGraphs)
			r.Put("/{name}", s.SaveNamed)
			r.Post("/{name}/restore", s.RestoreNamed)
			r.Delete("/{name}", s.DeleteNamed)
		})
	}
	if s.Feed != nil {
		r.Get("/ws", s.Subscribe)
	}
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"needs_resync": s.Graph.NeedsResync(),
	})
}

func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	snap := s.Graph.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":       "netviz",
		"version":    netviz.Version,
		"generation": snap.Generation,
		"nodes":      len(snap.Nodes),
		"links":      len(snap.Links),
		"groups":     len(snap.Groups),
	})
}

func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Graph.Snapshot())
}

func (s *Server) GetMermaid(w http.ResponseWriter, r *http.Request) {
	var overlay *graph.Overlay
	if focus := r.URL.Query().Get("focus"); focus != "" {
		overlay = &graph.Overlay{Focus: focus, Highlighted: r.URL.Query()["highlight"]}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(s.Graph.Snapshot(), overlay))
}

func (s *Server) GetSVG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	fmt.Fprint(w, graph.GenerateSVG(s.Graph.Snapshot(), s.Markers))
}

// PostNodes accepts one node or a list of nodes.
func (s *Server) PostNodes(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !s.decode(w, r, &raw) {
		return
	}
	var nodes []domain.NodeInput
	if err := json.Unmarshal(raw, &nodes); err != nil {
		var one domain.NodeInput
		if err := json.Unmarshal(raw, &one); err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", domain.ErrValidation, err))
			return
		}
		nodes = []domain.NodeInput{one}
	}
	if err := s.Graph.AddNode(r.Context(), nodes...); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	for _, n := range s.Graph.Snapshot().Nodes {
		if n.Hash == hash {
			s.writeJSON(w, http.StatusOK, n)
			return
		}
	}
	s.writeError(w, domain.NewOpError("getNode", domain.ErrNoSuchNode, hash, nil))
}

func (s *Server) DeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.Graph.RemoveNode(r.Context(), chi.URLParam(r, "hash"), nil); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PostTriplet(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, s.Graph.AddTriplet)
}

func (s *Server) PostEdge(w http.ResponseWriter, r *http.Request) {
	s.ingest(w, r, s.Graph.AddEdge)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, add func(context.Context, domain.Fact) error) {
	var fact domain.Fact
	if !s.decode(w, r, &fact) {
		return
	}
	if err := add(r.Context(), fact); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, fact.Key())
}

type mergeRequest struct {
	Anchor string `json:"anchor"`
	Member string `json:"member"`
}

func (s *Server) PostGroup(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.Graph.MergeIntoGroup(r.Context(), req.Anchor, req.Member)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"group": id})
}

func (s *Server) GetLayout(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Graph.LayoutOptions())
}

// PutLayout overlays the body on the current options.
func (s *Server) PutLayout(w http.ResponseWriter, r *http.Request) {
	opts := s.Graph.LayoutOptions()
	if !s.decode(w, r, &opts) {
		return
	}
	if err := s.Graph.SetLayoutOptions(r.Context(), opts); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Graph.LayoutOptions())
}

func (s *Server) PostRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.Graph.Restart(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PostRecenter(w http.ResponseWriter, r *http.Request) {
	s.Graph.Recenter()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) PostResync(w http.ResponseWriter, r *http.Request) {
	if err := s.Graph.Resync(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := s.Graph.SaveGraph(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) PutSaved(w http.ResponseWriter, r *http.Request) {
	var saved domain.SavedGraph
	if !s.decode(w, r, &saved) {
		return
	}
	if err := s.Graph.RestoreGraph(r.Context(), &saved); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	names, err := s.Saved.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) SaveNamed(w http.ResponseWriter, r *http.Request) {
	saved, err := s.Graph.SaveGraph(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Saved.Save(r.Context(), chi.URLParam(r, "name"), saved); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) RestoreNamed(w http.ResponseWriter, r *http.Request) {
	saved, err := s.Saved.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Graph.RestoreGraph(r.Context(), saved); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DeleteNamed(w http.ResponseWriter, r *http.Request) {
	if err := s.Saved.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe upgrades to a websocket and streams feed frames until either side
// closes. The first frame is {"type":"connected","generation":N}.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("WS: upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	frames, cancel := s.Feed.Subscribe()
	defer cancel()

	hello := Message{Type: EventConnected, Generation: s.Graph.Snapshot().Generation}
	if err := ws.WriteJSON(hello); err != nil {
		return
	}
	s.Logger.Debug("WS: client connected", "remote", r.RemoteAddr)

	// The read side only watches for the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.Logger.Debug("WS: client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Logger.Debug("WS: write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.Logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		s.writeError(w, fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch observability.KindOf(err) {
	case "validation":
		return http.StatusBadRequest
	case "duplicate":
		return http.StatusConflict
	case "no_such_node", "reference", "not_found":
		return http.StatusNotFound
	case "closed":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= 500 {
		s.Logger.Error("Request failed", "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Kind: observability.KindOf(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("Response encode failed", "err", err)
	}
}

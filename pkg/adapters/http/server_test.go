package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/netviz"
	"github.com/aretw0/netviz/internal/presentation/graph"
	api "github.com/aretw0/netviz/pkg/adapters/http"
	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	graph   *netviz.Graph
	feed    *api.Feed
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	feed := api.NewFeed(nil)
	markers := graph.NewMarkerSet()
	g, err := netviz.New(
		netviz.WithoutLayout(),
		netviz.WithEdgeColors(map[string]string{"likes": "red"}, ""),
		netviz.WithAssetFactory(markers),
		netviz.WithLifecycleHooks(feed.Hooks()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	h := api.NewHandler(g,
		api.WithFeed(feed),
		api.WithMarkers(markers),
		api.WithGraphStore(memory.NewGraphStore()),
		api.WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		})),
	)
	return &fixture{graph: g, feed: feed, handler: h}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestTriplets(t *testing.T) {
	f := newFixture(t)
	body := `{"subject":{"hash":"a","shortname":"Alice"},"predicate":{"type":"likes","weight":2},"object":{"hash":"b"}}`

	w := f.do(t, "POST", "/triplets", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"subject":"a","predicate":"likes","object":"b"}`, w.Body.String())

	w = f.do(t, "POST", "/triplets", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"duplicate"`)

	w = f.do(t, "POST", "/triplets", `{"subject":{"hash":""},"predicate":{"type":"x"},"object":{"hash":"b"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/triplets", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var snap domain.Snapshot
	w = f.do(t, "GET", "/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Links, 1)
	assert.Equal(t, "red", snap.Links[0].Color)
	assert.Equal(t, 2.0, snap.Links[0].Data.Data["weight"])
}

func TestNodesAndEdges(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/nodes", `[{"hash":"a"},{"hash":"b","x":10,"y":20}]`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = f.do(t, "POST", "/nodes", `{"hash":"c"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, f.graph.HasNode("c"))

	w = f.do(t, "GET", "/nodes/b", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"x":10`)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/nodes/zz", "").Code)

	// edges to unknown nodes are accepted and ignored
	w = f.do(t, "POST", "/edges", `{"subject":{"hash":"a"},"predicate":{"type":"p"},"object":{"hash":"zz"}}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, f.graph.Links())

	w = f.do(t, "POST", "/edges", `{"subject":{"hash":"a"},"predicate":{"type":"p"},"object":{"hash":"b"}}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, f.graph.Links(), 1)

	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/nodes/a", "").Code)
	assert.Empty(t, f.graph.Links())
	w = f.do(t, "DELETE", "/nodes/a", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"no_such_node"`)
}

func TestGroups(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusNoContent, f.do(t, "POST", "/nodes", `[{"hash":"a"},{"hash":"b"}]`).Code)

	w := f.do(t, "POST", "/groups", `{"anchor":"a","member":"b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"group"`)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/groups", `{"anchor":"a","member":"a"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/groups", `{"anchor":"a","member":"q"}`).Code)
}

func TestLayout(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "PUT", "/layout", `{"flow_direction":"x","edge_length":80}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.FlowRight, f.graph.LayoutOptions().FlowDirection)
	assert.Equal(t, 80.0, f.graph.LayoutOptions().EdgeLength)
	assert.Equal(t, 900.0, f.graph.LayoutOptions().Width)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/layout", `{"layout_type":"spiral"}`).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, "POST", "/layout/restart", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, "POST", "/layout/recenter", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/layout", "").Code)
}

func TestExports(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.graph.AddTriplet(context.Background(), domain.NewFact("a", "likes", "b")))

	w := f.do(t, "GET", "/graph/mermaid?focus=a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `a -- "likes" --> b`)
	assert.Contains(t, w.Body.String(), "class a focus;")

	w = f.do(t, "GET", "/graph/svg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `<marker id="arrow-red"`)

	assert.Equal(t, "metrics", f.do(t, "GET", "/metrics", "").Body.String())

	w = f.do(t, "GET", "/info", "")
	assert.Contains(t, w.Body.String(), `"links":1`)
	w = f.do(t, "GET", "/health", "")
	assert.JSONEq(t, `{"status":"ok","needs_resync":false}`, w.Body.String())
}

func TestSavedGraphs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.graph.AddTriplet(context.Background(), domain.NewFact("a", "likes", "b")))

	w := f.do(t, "GET", "/graph/saved", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"triplets":[{"subject":"a","predicate":"likes","object":"b"}]`)

	require.Equal(t, http.StatusNoContent, f.do(t, "PUT", "/graphs/first", "").Code)
	w = f.do(t, "GET", "/graphs", "")
	assert.JSONEq(t, `["first"]`, w.Body.String())

	other := newFixture(t)
	other.handler = api.NewHandler(other.graph, api.WithGraphStore(memoryWith(t, "first", f)))
	require.Equal(t, http.StatusNoContent, other.do(t, "POST", "/graphs/first/restore", "").Code)
	assert.True(t, other.graph.HasNode("b"))
	assert.Len(t, other.graph.Links(), 1)

	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/graphs/missing/restore", "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/graphs/first", "").Code)

	w = other.do(t, "PUT", "/graph/saved", `{"triplets":[{"subject":"x","predicate":"p","object":"y"}],"nodes":[]}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, other.graph.HasNode("x"))
}

func memoryWith(t *testing.T, name string, f *fixture) *memory.GraphStore {
	t.Helper()
	gs := memory.NewGraphStore()
	saved, err := f.graph.SaveGraph(context.Background())
	require.NoError(t, err)
	require.NoError(t, gs.Save(context.Background(), name, saved))
	return gs
}

func TestWebsocketFeed(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello api.Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, api.EventConnected, hello.Type)
	assert.Equal(t, 1, f.feed.Len())

	ctx := context.Background()
	require.NoError(t, f.graph.AddTriplet(ctx, domain.NewFact("a", "likes", "b")))
	require.Error(t, f.graph.AddTriplet(ctx, domain.NewFact("a", "likes", "b")))

	var types []domain.EventType
	var reprojected, rejected api.Message
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(types) < 3 {
		var msg api.Message
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		switch msg.Type {
		case domain.EventReprojected:
			reprojected = msg
		case domain.EventRejected:
			rejected = msg
		}
	}

	assert.Equal(t, []domain.EventType{domain.EventStructuralChange, domain.EventReprojected, domain.EventRejected}, types)
	assert.Equal(t, "addTriplet", reprojected.Op)
	assert.Equal(t, 2, reprojected.Nodes)
	assert.Equal(t, 1, reprojected.Links)
	assert.Equal(t, "duplicate", rejected.Kind)

	conn.Close()
	assert.Eventually(t, func() bool { return f.feed.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/netviz"
	"github.com/aretw0/netviz/internal/seed"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
node "alice" {
  label = ["Alice", "Smith"]
  x     = 100
  y     = 50
}

node "bob" {
  label = upper("bob")
}

fact "alice" "knows" "bob" {
  data = { since = 2019, color = "red" }
}

fact "bob" "knows" "carol" {
  object_label = "Carol"
}

group {
  members = ["alice", "bob", "carol"]
}
`

func TestParse(t *testing.T) {
	s, err := seed.Parse("sample.hcl", []byte(sample))
	require.NoError(t, err)

	require.Len(t, s.Nodes, 2)
	assert.Equal(t, domain.Label{"Alice", "Smith"}, s.Nodes[0].Shortname)
	require.NotNil(t, s.Nodes[0].X)
	assert.Equal(t, 100.0, *s.Nodes[0].X)
	assert.Nil(t, s.Nodes[1].X)
	assert.Equal(t, domain.Label{"BOB"}, s.Nodes[1].Shortname)

	require.Len(t, s.Facts, 2)
	assert.Equal(t, domain.FactKey{Subject: "alice", Predicate: "knows", Object: "bob"}, s.Facts[0].Key())
	assert.Equal(t, "red", s.Facts[0].Predicate.Data["color"])
	assert.Equal(t, 2019.0, s.Facts[0].Predicate.Data["since"])
	assert.Nil(t, s.Facts[1].Predicate.Data)
	assert.Equal(t, domain.Label{"Carol"}, s.Facts[1].Object.Shortname)

	assert.Equal(t, [][]string{{"alice", "bob", "carol"}}, s.Groups)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `node "a" {`},
		{"unknown block", `edge "a" "b" {}`},
		{"empty hash", `node "" {}`},
		{"empty predicate", `fact "a" "" "b" {}`},
		{"bad label", `node "a" { label = 3 }`},
		{"data not object", `fact "a" "p" "b" { data = "x" }`},
		{"reserved type", `fact "a" "p" "b" { data = { type = "q" } }`},
		{"short group", `group { members = ["a"] }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.Parse("bad.hcl", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoad_JSONSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "node": {"a": {"label": "A"}},
  "fact": {"a": {"likes": {"b": {}}}}
}`), 0o644))

	s, err := seed.Load(path)
	require.NoError(t, err)
	require.Len(t, s.Nodes, 1)
	assert.Equal(t, domain.Label{"A"}, s.Nodes[0].Shortname)
	require.Len(t, s.Facts, 1)
	assert.Equal(t, "likes", s.Facts[0].Predicate.Type)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	s, err := seed.Parse("sample.hcl", []byte(sample))
	require.NoError(t, err)

	g, err := netviz.New(netviz.WithoutLayout())
	require.NoError(t, err)
	defer g.Close()

	r, err := s.Apply(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, seed.Report{Nodes: 2, Facts: 2, Merges: 2}, r)

	assert.True(t, g.HasNode("carol"))
	assert.Len(t, g.Links(), 2)
	require.Len(t, g.Groups(), 1)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, g.Groups()[0].Members)

	// replaying is idempotent for facts
	r, err = s.Apply(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Skipped)
	assert.Equal(t, 0, r.Facts)
	assert.Len(t, g.Links(), 2)
}

// Package seed reads graph seed files written in HCL (or HCL's JSON syntax)
// and replays them onto a graph.
//
//	node "alice" {
//	  label = ["Alice", "Smith"]
//	  x     = 100
//	}
//
//	fact "alice" "knows" "bob" {
//	  data = { since = 2019, color = "red" }
//	}
//
//	group {
//	  members = ["alice", "bob"]
//	}
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/netviz/internal/validator"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Seed is the decoded content of one seed file.
type Seed struct {
	Nodes  []domain.NodeInput
	Facts  []domain.Fact
	Groups [][]string
}

type hclFile struct {
	Nodes  []*hclNode  `hcl:"node,block"`
	Facts  []*hclFact  `hcl:"fact,block"`
	Groups []*hclGroup `hcl:"group,block"`
}

type hclNode struct {
	Hash  string    `hcl:"hash,label"`
	Label cty.Value `hcl:"label,optional"`
	X     *float64  `hcl:"x,optional"`
	Y     *float64  `hcl:"y,optional"`
}

type hclFact struct {
	Subject      string    `hcl:"subject,label"`
	Predicate    string    `hcl:"predicate,label"`
	Object       string    `hcl:"object,label"`
	SubjectLabel cty.Value `hcl:"subject_label,optional"`
	ObjectLabel  cty.Value `hcl:"object_label,optional"`
	Data         cty.Value `hcl:"data,optional"`
}

type hclGroup struct {
	Members []string `hcl:"members"`
}

// evalContext exposes a few string helpers to seed expressions.
var evalContext = &hcl.EvalContext{
	Functions: map[string]function.Function{
		"upper":  stdlib.UpperFunc,
		"lower":  stdlib.LowerFunc,
		"format": stdlib.FormatFunc,
		"join":   stdlib.JoinFunc,
		"concat": stdlib.ConcatFunc,
	},
}

// Load parses the seed file at path. Files ending in .json use HCL's JSON syntax.
func Load(path string) (*Seed, error) {
	parser := hclparse.NewParser()
	var file *hcl.File
	var diags hcl.Diagnostics
	if strings.EqualFold(filepath.Ext(path), ".json") {
		file, diags = parser.ParseJSONFile(path)
	} else {
		file, diags = parser.ParseHCLFile(path)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, diags)
	}
	return decode(path, file)
}

// Parse decodes HCL source held in memory. filename is used in diagnostics only.
func Parse(filename string, src []byte) (*Seed, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", filename, diags)
	}
	return decode(filename, file)
}

func decode(filename string, file *hcl.File) (*Seed, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode seed file %s: %w", filename, diags)
	}

	out := &Seed{}
	for _, n := range parsed.Nodes {
		label, err := toLabel(n.Label)
		if err != nil {
			return nil, fmt.Errorf("%s: node %q: %w", filename, n.Hash, err)
		}
		in := domain.NodeInput{Hash: n.Hash, Shortname: label, X: n.X, Y: n.Y}
		if err := validator.ValidateNode(&in); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		out.Nodes = append(out.Nodes, in)
	}

	for _, f := range parsed.Facts {
		fact := domain.NewFact(f.Subject, f.Predicate, f.Object)
		var err error
		if fact.Subject.Shortname, err = toLabel(f.SubjectLabel); err != nil {
			return nil, fmt.Errorf("%s: fact %q: subject_label: %w", filename, f.Subject, err)
		}
		if fact.Object.Shortname, err = toLabel(f.ObjectLabel); err != nil {
			return nil, fmt.Errorf("%s: fact %q: object_label: %w", filename, f.Subject, err)
		}
		if fact.Predicate.Data, err = toData(f.Data); err != nil {
			return nil, fmt.Errorf("%s: fact %q: data: %w", filename, f.Subject, err)
		}
		if err := validator.ValidateFact(&fact); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		out.Facts = append(out.Facts, fact)
	}

	for i, g := range parsed.Groups {
		if len(g.Members) < 2 {
			return nil, fmt.Errorf("%w: %s: group #%d needs at least two members", domain.ErrValidation, filename, i)
		}
		out.Groups = append(out.Groups, g.Members)
	}
	return out, nil
}

// toLabel accepts a string or a list of strings.
func toLabel(v cty.Value) (domain.Label, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("%w: label must be known", domain.ErrValidation)
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		if s := v.AsString(); s != "" {
			return domain.Label{s}, nil
		}
		return nil, nil
	case ty.IsListType() || ty.IsTupleType():
		var out domain.Label
		for it := v.ElementIterator(); it.Next(); {
			_, el := it.Element()
			if el.IsNull() || el.Type() != cty.String {
				return nil, fmt.Errorf("%w: label lines must be strings", domain.ErrValidation)
			}
			out = append(out, el.AsString())
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: label must be a string or a list of strings", domain.ErrValidation)
}

// toData converts an HCL object into plain JSON values.
func toData(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("%w: must be an object", domain.ErrValidation)
	}
	raw, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if _, ok := data["type"]; ok {
		return nil, fmt.Errorf("%w: \"type\" is reserved for the predicate label", domain.ErrValidation)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Target is the subset of the graph API a seed is replayed onto.
type Target interface {
	AddNode(ctx context.Context, nodes ...domain.NodeInput) error
	AddTriplet(ctx context.Context, fact domain.Fact) error
	MergeIntoGroup(ctx context.Context, anchor, member string) (string, error)
}

// Report counts what Apply changed.
type Report struct {
	Nodes   int `json:"nodes"`
	Facts   int `json:"facts"`
	Skipped int `json:"skipped"`
	Merges  int `json:"merges"`
}

// Apply adds nodes first, then facts, then merges groups. Facts already stored
// are counted as skipped. The first other error aborts the replay.
func (s *Seed) Apply(ctx context.Context, t Target) (Report, error) {
	var r Report
	if len(s.Nodes) > 0 {
		if err := t.AddNode(ctx, s.Nodes...); err != nil {
			return r, err
		}
		r.Nodes = len(s.Nodes)
	}
	for _, f := range s.Facts {
		err := t.AddTriplet(ctx, f)
		switch {
		case errors.Is(err, domain.ErrDuplicateFact):
			r.Skipped++
		case err != nil:
			return r, err
		default:
			r.Facts++
		}
	}
	for _, members := range s.Groups {
		for _, m := range members[1:] {
			if _, err := t.MergeIntoGroup(ctx, members[0], m); err != nil {
				if errors.Is(err, domain.ErrValidation) {
					continue // repeated member
				}
				return r, err
			}
			r.Merges++
		}
	}
	return r, nil
}

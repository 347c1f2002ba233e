package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// keySep separates the three parts of a rendered FactKey. Validation keeps control
// characters out of hashes and types, so rendered keys never collide.
const keySep = "\x1f"

// Label is a node's display text. It accepts either a single string or a list of lines.
type Label []string

// UnmarshalJSON accepts "text" or ["line 1", "line 2"].
func (l *Label) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
			return nil
		}
		*l = Label{single}
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("%w: shortname must be a string or a list of strings", ErrValidation)
	}
	*l = lines
	return nil
}

// MarshalJSON emits a plain string for single-line labels.
func (l Label) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// String joins the lines with a space.
func (l Label) String() string {
	return strings.Join(l, " ")
}

// NodeRef is any record carrying a unique hash.
type NodeRef struct {
	Hash      string `json:"hash" validate:"required,nocontrol"`
	Shortname Label  `json:"shortname,omitempty"`
}

// UnmarshalJSON coerces numeric and boolean hashes into their canonical string form.
func (r *NodeRef) UnmarshalJSON(data []byte) error {
	var aux struct {
		Hash      any   `json:"hash"`
		Shortname Label `json:"shortname"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Hash = HashString(aux.Hash)
	r.Shortname = aux.Shortname
	return nil
}

// HashString converts a decoded hash value into its stable key form.
// Unsupported types yield the empty string, which validation rejects.
func HashString(v any) string {
	switch h := v.(type) {
	case string:
		return h
	case float64:
		return strconv.FormatFloat(h, 'f', -1, 64)
	case json.Number:
		return h.String()
	case int:
		return strconv.Itoa(h)
	case int64:
		return strconv.FormatInt(h, 10)
	case bool:
		return strconv.FormatBool(h)
	default:
		return ""
	}
}

// Predicate is the typed relationship of a fact. Extra fields are kept in Data
// and flattened next to "type" on the wire.
type Predicate struct {
	Type string         `json:"type" validate:"required,nocontrol"`
	Data map[string]any `json:"-"`

	// typeErr is set when the decoded "type" field was present but not a string.
	typeErr bool
}

// UnmarshalJSON decodes {"type": "...", ...data}.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Type, p.typeErr, p.Data = "", false, nil
	if t, ok := raw["type"]; ok {
		s, isString := t.(string)
		if !isString {
			p.typeErr = true
		}
		p.Type = s
		delete(raw, "type")
	}
	if len(raw) > 0 {
		p.Data = raw
	}
	return nil
}

// MarshalJSON flattens Data next to "type".
func (p Predicate) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Data)+1)
	for k, v := range p.Data {
		out[k] = v
	}
	out["type"] = p.Type
	return json.Marshal(out)
}

// TypeIsString reports whether the decoded "type" field was a string (or absent).
func (p Predicate) TypeIsString() bool {
	return !p.typeErr
}

// Fact is a subject-predicate-object triplet.
type Fact struct {
	Subject   NodeRef   `json:"subject"`
	Predicate Predicate `json:"predicate"`
	Object    NodeRef   `json:"object"`
}

// Key returns the identity of the fact in the store.
func (f Fact) Key() FactKey {
	return FactKey{Subject: f.Subject.Hash, Predicate: f.Predicate.Type, Object: f.Object.Hash}
}

// NewFact builds a fact from bare hashes and a predicate type.
func NewFact(subject, predicate, object string) Fact {
	return Fact{
		Subject:   NodeRef{Hash: subject},
		Predicate: Predicate{Type: predicate},
		Object:    NodeRef{Hash: object},
	}
}

// FactKey is the uniqueness key (subject.hash, predicate.type, object.hash).
type FactKey struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// String renders the key for logs and lock names.
func (k FactKey) String() string {
	return k.Subject + keySep + k.Predicate + keySep + k.Object
}

// Pattern is a partial fact. Empty fields match anything.
type Pattern struct {
	Subject   string `json:"subject,omitempty"`
	Predicate string `json:"predicate,omitempty"`
	Object    string `json:"object,omitempty"`
}

// PatternFor returns the exact-match pattern for a key.
func PatternFor(k FactKey) Pattern {
	return Pattern{Subject: k.Subject, Predicate: k.Predicate, Object: k.Object}
}

// Matches reports whether the fact satisfies every non-empty field of the pattern.
func (p Pattern) Matches(f Fact) bool {
	if p.Subject != "" && p.Subject != f.Subject.Hash {
		return false
	}
	if p.Predicate != "" && p.Predicate != f.Predicate.Type {
		return false
	}
	if p.Object != "" && p.Object != f.Object.Hash {
		return false
	}
	return true
}

// IsZero reports whether the pattern is an unfiltered scan.
func (p Pattern) IsZero() bool {
	return p.Subject == "" && p.Predicate == "" && p.Object == ""
}

// Clone returns a deep copy of the fact.
func (f Fact) Clone() Fact {
	out := f
	out.Subject.Shortname = append(Label(nil), f.Subject.Shortname...)
	out.Object.Shortname = append(Label(nil), f.Object.Shortname...)
	if f.Predicate.Data != nil {
		out.Predicate.Data = make(map[string]any, len(f.Predicate.Data))
		for k, v := range f.Predicate.Data {
			out.Predicate.Data[k] = v
		}
	}
	return out
}

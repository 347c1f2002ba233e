package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.TripletStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks predicate data values whose keys
// match one of the patterns before they reach the store. Keys are never masked.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.TripletStore) ports.TripletStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Put(ctx context.Context, facts ...domain.Fact) error {
	masked := make([]domain.Fact, len(facts))
	for i, f := range facts {
		// Deep copy so the caller's projection keeps the real values.
		c := f.Clone()
		c.Predicate.Data = deepCopyMap(f.Predicate.Data)
		maskMap(c.Predicate.Data, m.patterns)
		masked[i] = c
	}
	return m.next.Put(ctx, masked...)
}

func (m *piiMiddleware) Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error) {
	return m.next.Get(ctx, pattern)
}

func (m *piiMiddleware) Delete(ctx context.Context, facts ...domain.Fact) error {
	return m.next.Delete(ctx, facts...)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}

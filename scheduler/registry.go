// Package scheduler drives ingestion cycles. It serializes cycles behind
// the global run lock, walks the query registry in order, turns runner
// failures into retry/pause/abort outcomes, and hosts the auxiliary
// cycle phases around the queries.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// RunnerFunc executes one registered query end to end. It returns the
// high-water processing mark to persist with the query state, nil when
// the runner does not track one.
type RunnerFunc func(ctx context.Context, queryKey string) (lastProcessedDate *string, err error)

// Query is one registry entry.
type Query struct {
	Client string
	Name   string
	Params map[string]string
	Runner RunnerFunc
}

// Key is the stable identity of the query across cycles:
// <client>:<name>:<hash(params)>.
func (q *Query) Key() string {
	return q.Client + ":" + q.Name + ":" + paramsHash(q.Params)
}

// paramsHash is the first 8 hex chars of SHA-256 over the canonical
// key=value encoding. A param change yields a new query key; the
// client and name keep the key readable in logs.
func paramsHash(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:8]
}

// Registry is the ordered, compile-time set of queries a cycle walks.
type Registry struct {
	queries []Query
}

// NewRegistry validates the queries and fixes their order.
func NewRegistry(queries ...Query) (*Registry, error) {
	seen := make(map[string]struct{}, len(queries))
	for i := range queries {
		q := &queries[i]
		if q.Client == "" || q.Name == "" {
			return nil, errors.Errorf("query %d: client and name are required", i)
		}
		if q.Runner == nil {
			return nil, errors.Errorf("query %s: runner is required", q.Key())
		}
		key := q.Key()
		if _, ok := seen[key]; ok {
			return nil, errors.Errorf("duplicate query key %s", key)
		}
		seen[key] = struct{}{}
	}
	return &Registry{queries: queries}, nil
}

// Queries returns the registry entries in registration order.
func (r *Registry) Queries() []Query { return r.queries }

// Clients returns the distinct clients in first-appearance order.
func (r *Registry) Clients() []string {
	seen := make(map[string]struct{}, len(r.queries))
	out := make([]string, 0, len(r.queries))
	for i := range r.queries {
		c := r.queries[i].Client
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

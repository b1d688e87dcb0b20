package ratelimit

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy decides how a caller identity is derived for a policy.
type Strategy string

const (
	// BySession keys the counter on the authenticated user. Requests without a session are not limited.
	BySession Strategy = "bySession"
	// ByFingerprint keys the counter on a hash of connection metadata, for anonymous endpoints.
	ByFingerprint Strategy = "byFingerprint"
)

// Operation names guarded by the limiter.
const (
	OpSyncCSV        = "sync.csv"
	OpSyncOrder      = "sync.order"
	OpSyncCollection = "sync.collection"
	OpSyncStream     = "sync.stream"
	OpOrdersMerge    = "orders.merge"
	OpOrdersSplit    = "orders.split"
	OpCatalogLookup  = "catalog.lookup"
)

// ErrUnknownPolicy is returned when no policy is registered for an operation.
var ErrUnknownPolicy = errors.New("no rate limit policy for operation")

// Policy is the quota of one operation.
type Policy struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
	KeyPrefix   string
	Strategy    Strategy
}

func (p Policy) validate() error {
	switch {
	case p.Name == "":
		return errors.New("policy name is empty")
	case p.MaxRequests < 1:
		return fmt.Errorf("policy %s: maxRequests must be >= 1", p.Name)
	case p.Window < time.Second:
		return fmt.Errorf("policy %s: window must be at least one second", p.Name)
	case p.Strategy != BySession && p.Strategy != ByFingerprint:
		return fmt.Errorf("policy %s: unknown identity strategy %q", p.Name, p.Strategy)
	}
	return nil
}

// DefaultPolicies returns the built-in policies.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: OpSyncCSV, MaxRequests: 5, Window: 10 * time.Minute, KeyPrefix: "rl:sync:csv", Strategy: BySession},
		{Name: OpSyncOrder, MaxRequests: 20, Window: 10 * time.Minute, KeyPrefix: "rl:sync:order", Strategy: BySession},
		{Name: OpSyncCollection, MaxRequests: 20, Window: 10 * time.Minute, KeyPrefix: "rl:sync:collection", Strategy: BySession},
		{Name: OpSyncStream, MaxRequests: 60, Window: time.Minute, KeyPrefix: "rl:sync:stream", Strategy: BySession},
		{Name: OpOrdersMerge, MaxRequests: 30, Window: time.Minute, KeyPrefix: "rl:orders:merge", Strategy: BySession},
		{Name: OpOrdersSplit, MaxRequests: 30, Window: time.Minute, KeyPrefix: "rl:orders:split", Strategy: BySession},
		{Name: OpCatalogLookup, MaxRequests: 30, Window: time.Minute, KeyPrefix: "rl:catalog:lookup", Strategy: ByFingerprint},
	}
}

// Registry maps operation names to policies. It is built once and never mutated.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry validates policies and returns a Registry. Empty key prefixes default to "rl:<name>".
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.policies[p.Name]; dup {
			return nil, fmt.Errorf("duplicate policy %s", p.Name)
		}
		if p.KeyPrefix == "" {
			p.KeyPrefix = "rl:" + p.Name
		}
		r.policies[p.Name] = p
	}
	return r, nil
}

// Lookup returns a copy of the policy registered for name.
func (r *Registry) Lookup(name string) (Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

type policyFile struct {
	Policies []struct {
		Name          string   `yaml:"name"`
		MaxRequests   *int64   `yaml:"maxRequests"`
		WindowSeconds *int64   `yaml:"windowSeconds"`
		KeyPrefix     string   `yaml:"keyPrefix"`
		Strategy      Strategy `yaml:"identityStrategy"`
	} `yaml:"policies"`
}

// ApplyOverrides reads a YAML document and overrides matching base policies field by field.
// Policies not present in base are added and must be complete.
//
//	policies:
//	  - name: sync.csv
//	    maxRequests: 10
//	    windowSeconds: 300
func ApplyOverrides(base []Policy, r io.Reader) ([]Policy, error) {
	var f policyFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't decode rate limit policies: %w", err)
	}

	out := make([]Policy, len(base))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.Name] = i
	}

	for _, o := range f.Policies {
		i, ok := index[o.Name]
		if !ok {
			out = append(out, Policy{Name: o.Name})
			i = len(out) - 1
			index[o.Name] = i
		}
		p := &out[i]
		if o.MaxRequests != nil {
			p.MaxRequests = *o.MaxRequests
		}
		if o.WindowSeconds != nil {
			p.Window = time.Duration(*o.WindowSeconds) * time.Second
		}
		if o.KeyPrefix != "" {
			p.KeyPrefix = o.KeyPrefix
		}
		if o.Strategy != "" {
			p.Strategy = o.Strategy
		}
	}
	return out, nil
}

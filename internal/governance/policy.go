package governance

import (
	"context"
	"time"
)

// AccessVerdict is the outcome of the Phase-1 access policy.
type AccessVerdict struct {
	Granted    bool
	Reason     string
	Conditions map[string]any
}

// AccessPolicy answers "may we read this external source at all". Pluggable;
// the default is allow-by-default.
type AccessPolicy interface {
	Evaluate(ctx context.Context, tenant string, sourceType, sourceIdentifier string) AccessVerdict
}

// OpenAccessPolicy grants every request. This is the MVP policy: the value
// of Phase 1 at this stage is the audit trail, not the gate.
type OpenAccessPolicy struct{}

func (OpenAccessPolicy) Evaluate(_ context.Context, _ string, _, _ string) AccessVerdict {
	return AccessVerdict{Granted: true, Reason: "allow-by-default policy"}
}

// DenylistPolicy denies requests for blocked source types and grants the
// rest. Useful when a tenant onboards with a known-restricted source class.
type DenylistPolicy struct {
	BlockedSourceTypes map[string]string // source type -> denial reason
}

func (p DenylistPolicy) Evaluate(_ context.Context, _ string, sourceType, _ string) AccessVerdict {
	if reason, blocked := p.BlockedSourceTypes[sourceType]; blocked {
		return AccessVerdict{Granted: false, Reason: reason}
	}
	return AccessVerdict{Granted: true, Reason: "source type not restricted"}
}

// MaterializationOutcome is the policy branch for Phase 2.
type MaterializationOutcome string

const (
	OutcomePersist MaterializationOutcome = "persist"
	OutcomeCache   MaterializationOutcome = "cache"
	OutcomeDiscard MaterializationOutcome = "discard"
)

// MaterializationRule is one policy row: how data of a given artifact type
// may be kept, where, and for how long.
type MaterializationRule struct {
	Outcome      MaterializationOutcome
	BackingStore string
	TTL          time.Duration
	Basis        string
}

// Type maps the policy outcome onto the contract's materialization type.
func (r MaterializationRule) Type() MaterializationType {
	switch r.Outcome {
	case OutcomePersist:
		return MaterializationFullArtifact
	case OutcomeCache:
		return MaterializationDeterministic
	default:
		return MaterializationReference
	}
}

// MaterializationPolicy decides Phase 2, keyed by artifact type.
type MaterializationPolicy interface {
	Decide(artifactType string) MaterializationRule
}

// TablePolicy is a materialization policy backed by a lookup table with a
// fallback rule for unknown artifact types.
type TablePolicy struct {
	Rules    map[string]MaterializationRule
	Fallback MaterializationRule
}

func (p TablePolicy) Decide(artifactType string) MaterializationRule {
	if rule, ok := p.Rules[artifactType]; ok {
		return rule
	}
	return p.Fallback
}

// DefaultMaterializationPolicy reflects the platform defaults: embeddings
// are cache-class (recomputable, so TTL-bounded), deliverable outcomes are
// durable, previews keep nothing.
func DefaultMaterializationPolicy(cacheTTL time.Duration) TablePolicy {
	return TablePolicy{
		Rules: map[string]MaterializationRule{
			"embedding": {Outcome: OutcomeCache, BackingStore: "redis", TTL: cacheTTL, Basis: "deterministic output, recomputable from source"},
			"file":      {Outcome: OutcomeCache, BackingStore: "redis", TTL: cacheTTL, Basis: "working material, TTL-bounded"},
			"preview":   {Outcome: OutcomeDiscard, Basis: "ephemeral preview, nothing kept"},
			"solution":  {Outcome: OutcomePersist, BackingStore: "postgres", Basis: "purpose-bound outcome, durable"},
			"blueprint": {Outcome: OutcomePersist, BackingStore: "postgres", Basis: "purpose-bound outcome, durable"},
			"sop":       {Outcome: OutcomePersist, BackingStore: "postgres", Basis: "purpose-bound outcome, durable"},
			"workflow":  {Outcome: OutcomePersist, BackingStore: "postgres", Basis: "purpose-bound outcome, durable"},
			"journey":   {Outcome: OutcomePersist, BackingStore: "postgres", Basis: "purpose-bound outcome, durable"},
		},
		Fallback: MaterializationRule{Outcome: OutcomeDiscard, Basis: "unknown artifact type keeps nothing"},
	}
}

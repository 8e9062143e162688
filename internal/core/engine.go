// Package core ties the merge, identity, conflict, resolve and commit
// stages into the per-document reconciliation the pipeline drives.
package core

import (
	"context"
	"fmt"

	"github.com/agenthands/lineage/internal/core/commit"
	"github.com/agenthands/lineage/internal/core/conflict"
	"github.com/agenthands/lineage/internal/core/identity"
	"github.com/agenthands/lineage/internal/core/merge"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/core/resolve"
	"github.com/agenthands/lineage/internal/lock"
	"github.com/agenthands/lineage/internal/logger"
)

type Engine struct {
	Merger    *merge.Merger
	Identity  *identity.Resolver
	Detector  *conflict.Detector
	Resolver  *resolve.Resolver
	Committer *commit.Committer
	Locker    lock.KeyLocker
	Log       *logger.Logger
}

func NewEngine(m *merge.Merger, id *identity.Resolver, d *conflict.Detector, r *resolve.Resolver, c *commit.Committer, l lock.KeyLocker, log *logger.Logger) *Engine {
	if l == nil {
		l = lock.NewMemoryLocker()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		Merger:    m,
		Identity:  id,
		Detector:  d,
		Resolver:  r,
		Committer: c,
		Locker:    l,
		Log:       log,
	}
}

func (e *Engine) Merge(results []model.ExtractionResult) model.MergedRecord {
	return e.Merger.Merge(results)
}

// Plan is what reconciling a merged record against the store would do.
type Plan struct {
	Key       identity.Key
	Existing  *model.CanonicalRecord
	Conflicts model.ConflictSet
	Fills     []model.Field
}

// SubjectKey is the key the person is stored under: the canonical record's
// when one was found, the derived key otherwise.
func (p *Plan) SubjectKey() string {
	if p.Existing != nil && p.Existing.IdentityKey != "" {
		return p.Existing.IdentityKey
	}
	return p.Key.String()
}

// Plan looks up the canonical record and detects conflicts. It writes nothing.
func (e *Engine) Plan(ctx context.Context, merged model.MergedRecord, docURL string) (*Plan, error) {
	key, err := e.Identity.Key(merged)
	if err != nil {
		return nil, err
	}
	existing, err := e.Identity.FindCanonical(ctx, key)
	if err != nil {
		return nil, err
	}

	conflicts := e.Detector.Detect(merged, existing)
	for i := range conflicts {
		conflicts[i].DocumentURL = docURL
	}
	return &Plan{
		Key:       key,
		Existing:  existing,
		Conflicts: conflicts,
		Fills:     conflict.Fills(merged, existing),
	}, nil
}

type ReconcileOptions struct {
	// DryRun stops after resolution; nothing is committed.
	DryRun bool
	// OnConflicts runs before an interactive decider is consulted.
	OnConflicts func(model.ConflictSet)
	// OnResolved runs after resolution and before the commit; an error
	// aborts the commit.
	OnResolved func(model.ResolvedRecord) error
}

type Outcome struct {
	Plan     *Plan
	Resolved model.ResolvedRecord
	Commit   model.CommitResult
}

// Reconcile holds the identity lock from lookup through commit, so two
// documents about the same person never interleave.
func (e *Engine) Reconcile(ctx context.Context, doc model.SourceDocument, merged model.MergedRecord, rels []model.RelationshipMention, opts ReconcileOptions) (*Outcome, error) {
	key, err := e.Identity.Key(merged)
	if err != nil {
		return nil, err
	}

	// Locking on the name part covers name-only fallback matches too.
	unlock, err := e.Locker.Lock(ctx, key.NameKey())
	if err != nil {
		return nil, fmt.Errorf("lock identity %q: %w", key.NameKey(), err)
	}
	defer unlock()

	plan, err := e.Plan(ctx, merged, doc.URL)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Plan: plan}

	if len(plan.Conflicts) > 0 {
		e.Log.Info("conflicts detected",
			"url", doc.URL, "identity_key", plan.SubjectKey(), "fields", plan.Conflicts.Fields())
		if e.Resolver.Mode() == resolve.Interactive && opts.OnConflicts != nil {
			opts.OnConflicts(plan.Conflicts)
		}
	}

	out.Resolved, err = e.Resolver.Resolve(ctx, plan.Existing, merged, plan.Conflicts)
	if err != nil {
		return out, err
	}
	if out.Resolved.IdentityKey == "" {
		out.Resolved.IdentityKey = plan.Key.String()
	}
	if opts.OnResolved != nil {
		if err := opts.OnResolved(out.Resolved); err != nil {
			return out, err
		}
	}

	if opts.DryRun {
		e.Log.Info("dry run, skipping commit", "url", doc.URL, "identity_key", out.Resolved.IdentityKey)
		return out, nil
	}

	out.Commit, err = e.Committer.Commit(ctx, out.Resolved, doc, rebase(rels, plan.Key.String(), out.Resolved.IdentityKey), merged.Confidence())
	if err != nil {
		return out, err
	}
	return out, nil
}

// rebase points relationship endpoints derived from the document's key at
// the key the person is actually stored under.
func rebase(rels []model.RelationshipMention, from, to string) []model.RelationshipMention {
	if from == to {
		return rels
	}
	out := make([]model.RelationshipMention, len(rels))
	for i, r := range rels {
		if r.FromKey == from {
			r.FromKey = to
		}
		if r.ToKey == from {
			r.ToKey = to
		}
		out[i] = r
	}
	return out
}

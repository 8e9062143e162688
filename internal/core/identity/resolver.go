// Package identity derives person identity keys from merged records and
// looks up the canonical record they refer to.
package identity

import (
	"context"
	"fmt"

	"github.com/agenthands/lineage/internal/core/dates"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
)

// Finder is the read side of the graph store the resolver needs.
type Finder interface {
	// FindByIdentity returns nil, nil when no person has the key.
	FindByIdentity(ctx context.Context, key string) (*model.CanonicalRecord, error)
	// FindByName returns every person whose key starts with the name part.
	FindByName(ctx context.Context, nameKey string) ([]*model.CanonicalRecord, error)
}

type Resolver struct {
	store Finder
	names NameNormalizer
	log   *logger.Logger

	// NameFallback lets a lookup that misses on the full key fall back to
	// people with the same normalized name (see FindCanonical).
	NameFallback bool
}

func NewResolver(store Finder, names NameNormalizer, log *logger.Logger) *Resolver {
	if names == nil {
		names = identityNormalizer{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{store: store, names: names, log: log, NameFallback: true}
}

// CanonicalName normalizes a raw name and maps its variants onto the
// spelling used in keys.
func (r *Resolver) CanonicalName(name string) string {
	return r.names.Canonical(NormalizeName(name))
}

// Key builds the identity key of a merged record without touching the store.
func (r *Resolver) Key(rec model.MergedRecord) (Key, error) {
	name := r.CanonicalName(rec.Value(model.FieldFullName))
	if name == "" {
		return "", model.ErrIdentity
	}
	return BuildKey(name,
		dates.Year(rec.Value(model.FieldBirthDate)),
		dates.Year(rec.Value(model.FieldDeathDate)),
	), nil
}

// FindCanonical returns the canonical record for key, or nil when the
// person has not been seen. An exact key match wins. With NameFallback, a
// miss is retried against people sharing the name: a single candidate whose
// known years do not contradict the key is returned, otherwise a sole
// candidate for the name is returned; anything ambiguous counts as unseen.
func (r *Resolver) FindCanonical(ctx context.Context, key Key) (*model.CanonicalRecord, error) {
	rec, err := r.store.FindByIdentity(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("identity lookup %q: %w", key, err)
	}
	if rec != nil || !r.NameFallback {
		return rec, nil
	}

	candidates, err := r.store.FindByName(ctx, key.NameKey())
	if err != nil {
		return nil, fmt.Errorf("identity lookup by name %q: %w", key.NameKey(), err)
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		r.log.Debug("identity matched by name", "key", key, "matched", candidates[0].IdentityKey)
		return candidates[0], nil
	}

	var compatible []*model.CanonicalRecord
	for _, c := range candidates {
		if yearsCompatible(key, Key(c.IdentityKey)) {
			compatible = append(compatible, c)
		}
	}
	if len(compatible) == 1 {
		r.log.Debug("identity matched by name and years", "key", key, "matched", compatible[0].IdentityKey)
		return compatible[0], nil
	}
	r.log.Info("ambiguous identity, treating as new person", "key", key, "candidates", len(candidates))
	return nil, nil
}

func yearsCompatible(a, b Key) bool {
	ab, ad := a.Years()
	bb, bd := b.Years()
	if ab != 0 && bb != 0 && ab != bb {
		return false
	}
	if ad != 0 && bd != 0 && ad != bd {
		return false
	}
	return true
}

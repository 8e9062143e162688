// Package resolve applies a decision to every conflict between a merged
// record and its canonical record and produces the record to commit.
package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/lineage/internal/core/dates"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
)

type Mode string

const (
	Automatic   Mode = "automatic"
	Interactive Mode = "interactive"
)

const DefaultOverrideThreshold = 0.95

type Config struct {
	Mode Mode
	// OverrideThreshold is the confidence a new non-date value must exceed
	// to replace an existing one automatically.
	OverrideThreshold float64
	// DecisionTimeout bounds each interactive decision; zero waits forever.
	DecisionTimeout time.Duration
}

type Resolver struct {
	cfg     Config
	decider Decider
	log     *logger.Logger
}

func NewResolver(cfg Config, decider Decider, log *logger.Logger) *Resolver {
	if cfg.Mode == "" {
		cfg.Mode = Automatic
	}
	if cfg.OverrideThreshold == 0 {
		cfg.OverrideThreshold = DefaultOverrideThreshold
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{cfg: cfg, decider: decider, log: log}
}

func (r *Resolver) Mode() Mode { return r.cfg.Mode }

// Resolve builds the record to commit. Non-conflicting new values fill
// empty fields, existing values of non-monitored fields always win, and
// each conflict gets exactly one decision. A nil existing record yields a
// new record built from merged.
func (r *Resolver) Resolve(ctx context.Context, existing *model.CanonicalRecord, merged model.MergedRecord, conflicts model.ConflictSet) (model.ResolvedRecord, error) {
	var out model.ResolvedRecord
	if existing == nil {
		out.Created = true
		out.Values = map[model.Field]string{}
	} else {
		out.CanonicalRecord = *existing.Clone()
		if out.Values == nil {
			out.Values = map[model.Field]string{}
		}
	}

	conflicting := make(map[model.Field]model.FieldConflict, len(conflicts))
	for _, c := range conflicts {
		conflicting[c.Field] = c
	}

	for _, f := range model.AllFields {
		nv, ok := merged.Get(f)
		if !ok || nv.Value == "" {
			continue
		}
		if c, isConflict := conflicting[f]; isConflict {
			entry, err := r.resolveOne(ctx, c)
			if err != nil {
				return model.ResolvedRecord{}, err
			}
			out.Values[f] = entry.Value
			if f == model.FieldBirthDate && entry.Value != entry.Existing {
				out.BirthYearCalculated = merged.BirthYearCalculated
			}
			out.Audit = append(out.Audit, entry)
			continue
		}
		if ev := out.Values[f]; ev != "" {
			// Equal under the field's equality, or a non-monitored field.
			// Agreeing dates still take the more precise spelling.
			if f.IsDate() && refines(nv.Value, ev) {
				out.Values[f] = nv.Value
				if f == model.FieldBirthDate {
					out.BirthYearCalculated = merged.BirthYearCalculated
				}
				out.Audit = append(out.Audit, model.AuditEntry{Field: f, Kind: model.AuditRefined, Existing: ev, New: nv.Value, Value: nv.Value})
			}
			continue
		}
		out.Values[f] = nv.Value
		if f == model.FieldBirthDate {
			out.BirthYearCalculated = merged.BirthYearCalculated
		}
		out.Audit = append(out.Audit, model.AuditEntry{Field: f, Kind: model.AuditFilled, New: nv.Value, Value: nv.Value})
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, c model.FieldConflict) (model.AuditEntry, error) {
	var d model.Decision
	switch r.cfg.Mode {
	case Interactive:
		var err error
		d, err = r.ask(ctx, c)
		if err != nil {
			return model.AuditEntry{}, err
		}
	default:
		d = r.automatic(c)
	}
	entry := Apply(d, c)
	r.log.Debug("conflict resolved",
		"field", c.Field, "decision", d, "existing", c.ExistingValue, "new", c.NewValue, "result", entry.Value)
	return entry, nil
}

func (r *Resolver) ask(ctx context.Context, c model.FieldConflict) (model.Decision, error) {
	if r.decider == nil {
		return "", fmt.Errorf("%w: no decider configured for %s", model.ErrConflictUnresolved, c.Field)
	}
	if r.cfg.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DecisionTimeout)
		defer cancel()
	}
	d, err := r.decider.Decide(ctx, c)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", model.ErrConflictUnresolved, c.Field, err)
	}
	if !d.Valid() {
		return "", fmt.Errorf("%w: %s: invalid decision %q", model.ErrConflictUnresolved, c.Field, d)
	}
	return d, nil
}

// automatic: dates keep the strictly more precise value, ties keep
// existing. Other fields keep existing unless the new confidence exceeds
// the override threshold.
func (r *Resolver) automatic(c model.FieldConflict) model.Decision {
	if c.Field.IsDate() {
		if morePrecise(c.NewValue, c.ExistingValue) {
			return model.UseNew
		}
		return model.KeepExisting
	}
	if c.NewConfidence > r.cfg.OverrideThreshold {
		return model.UseNew
	}
	return model.KeepExisting
}

// Apply turns a decision into the audited field outcome.
func Apply(d model.Decision, c model.FieldConflict) model.AuditEntry {
	e := model.AuditEntry{Field: c.Field, Decision: d, Existing: c.ExistingValue, New: c.NewValue}
	switch d {
	case model.UseNew:
		e.Kind, e.Value = model.AuditReplaced, c.NewValue
	case model.Merge:
		e.Kind, e.Value = model.AuditMerged, mergeValues(c)
	case model.Skip:
		e.Kind, e.Value = model.AuditSkipped, c.ExistingValue
	default:
		e.Kind, e.Value = model.AuditKept, c.ExistingValue
	}
	return e
}

// mergeValues: dates in the same year keep the more precise value, anything
// else keeps existing.
func mergeValues(c model.FieldConflict) string {
	if !c.Field.IsDate() {
		return c.ExistingValue
	}
	nd, okN := dates.Parse(c.NewValue)
	ed, okE := dates.Parse(c.ExistingValue)
	if !okN || !okE || nd.Year != ed.Year {
		return c.ExistingValue
	}
	if nd.Precision > ed.Precision {
		return c.NewValue
	}
	return c.ExistingValue
}

// refines reports whether newValue agrees with existingValue at their common
// precision and is strictly more precise.
func refines(newValue, existingValue string) bool {
	nd, okN := dates.Parse(newValue)
	ed, okE := dates.Parse(existingValue)
	return okN && okE && nd.Precision > ed.Precision && dates.EqualAtCommonPrecision(nd, ed)
}

func morePrecise(newValue, existingValue string) bool {
	nd, okN := dates.Parse(newValue)
	if !okN {
		return false
	}
	ed, okE := dates.Parse(existingValue)
	if !okE {
		return true
	}
	return nd.Precision > ed.Precision
}

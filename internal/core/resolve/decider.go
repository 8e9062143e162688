package resolve

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agenthands/lineage/internal/core/model"
)

// Decider answers one conflict at a time. Implementations may block until a
// human answers; they must return when ctx is done.
type Decider interface {
	Decide(ctx context.Context, c model.FieldConflict) (model.Decision, error)
}

type DeciderFunc func(ctx context.Context, c model.FieldConflict) (model.Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, c model.FieldConflict) (model.Decision, error) {
	return f(ctx, c)
}

// ScriptedDecider answers from a fixed table, per field with a default.
//
//	default: keep_existing
//	fields:
//	  death_date: merge
//	  gender: use_new
type ScriptedDecider struct {
	Default model.Decision                 `yaml:"default"`
	Fields  map[model.Field]model.Decision `yaml:"fields"`
}

func LoadScriptedDecider(path string) (*ScriptedDecider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read decisions file: %w", err)
	}
	var s ScriptedDecider
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse decisions file %s: %w", path, err)
	}
	if s.Default != "" && !s.Default.Valid() {
		return nil, &model.ConfigurationError{Field: "resolve.decisions_file", Reason: fmt.Sprintf("unknown default decision %q", s.Default)}
	}
	for f, d := range s.Fields {
		if !d.Valid() {
			return nil, &model.ConfigurationError{Field: "resolve.decisions_file", Reason: fmt.Sprintf("unknown decision %q for %s", d, f)}
		}
	}
	return &s, nil
}

func (s *ScriptedDecider) Decide(ctx context.Context, c model.FieldConflict) (model.Decision, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d, ok := s.Fields[c.Field]; ok {
		return d, nil
	}
	if s.Default != "" {
		return s.Default, nil
	}
	return model.KeepExisting, nil
}

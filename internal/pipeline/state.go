// Package pipeline drives source documents through fetch, extract, merge,
// resolve and commit, persisting each step in the document catalog.
package pipeline

import (
	"fmt"

	"github.com/agenthands/lineage/internal/core/model"
)

var forward = map[model.Status]model.Status{
	model.StatusPending:   model.StatusFetched,
	model.StatusFetched:   model.StatusExtracted,
	model.StatusExtracted: model.StatusMerged,
	model.StatusMerged:    model.StatusResolved,
	model.StatusResolved:  model.StatusImported,
}

type TransitionOptions struct {
	Interactive bool
	// Force allows the reprocess reset back to pending.
	Force bool
}

// Transition reports whether a document may move from one status to
// another. Re-entering the same stage is a retry, not a transition.
func Transition(from, to model.Status, opts TransitionOptions) error {
	if _, ok := model.ParseStatus(string(from)); !ok {
		return fmt.Errorf("%w: unknown status %q", model.ErrInvalidTransition, from)
	}
	invalid := fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)

	switch {
	case from == to:
		return invalid
	case to == model.StatusPending:
		if opts.Force {
			return nil
		}
		return invalid
	case from.Terminal():
		return invalid
	case to == model.StatusFailed || to == model.StatusExtractionFailed:
		return nil
	case forward[from] == to:
		return nil
	case from == model.StatusConflictPending && to == model.StatusResolved:
		// Decisions arrived, or the document is resumed in automatic mode.
		return nil
	case to == model.StatusConflictPending && opts.Interactive:
		if from == model.StatusMerged || from == model.StatusResolved {
			return nil
		}
	}
	return invalid
}

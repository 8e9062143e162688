package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
)

var (
	ErrUnknownDecision = errors.New("no pending decision with that id")
	ErrAlreadyAnswered = errors.New("decision already answered")
)

// PendingDecision is a conflict parked until someone answers it over HTTP.
type PendingDecision struct {
	ID        string              `json:"id"`
	Conflict  model.FieldConflict `json:"conflict"`
	CreatedAt time.Time           `json:"created_at"`

	answer chan model.Decision
}

// HTTPDecider parks each conflict and blocks only the worker that asked
// until an answer is posted or the worker's context ends. The resolver's
// decision timeout bounds the wait.
type HTTPDecider struct {
	mu      sync.Mutex
	pending map[string]*PendingDecision
	log     *logger.Logger
}

func NewHTTPDecider(log *logger.Logger) *HTTPDecider {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPDecider{pending: map[string]*PendingDecision{}, log: log}
}

func (d *HTTPDecider) Decide(ctx context.Context, c model.FieldConflict) (model.Decision, error) {
	p := &PendingDecision{
		ID:        uuid.NewString(),
		Conflict:  c,
		CreatedAt: time.Now().UTC(),
		answer:    make(chan model.Decision, 1),
	}
	d.mu.Lock()
	d.pending[p.ID] = p
	d.mu.Unlock()
	d.log.Info("awaiting decision", "id", p.ID, "field", c.Field, "identity_key", c.IdentityKey)

	defer func() {
		d.mu.Lock()
		delete(d.pending, p.ID)
		d.mu.Unlock()
	}()

	select {
	case dec := <-p.answer:
		return dec, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending lists the open decisions, oldest first.
func (d *HTTPDecider) Pending() []PendingDecision {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PendingDecision, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, PendingDecision{ID: p.ID, Conflict: p.Conflict, CreatedAt: p.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Answer delivers dec to the worker waiting on id.
func (d *HTTPDecider) Answer(id string, dec model.Decision) error {
	if !dec.Valid() {
		return fmt.Errorf("invalid decision %q", dec)
	}
	d.mu.Lock()
	p, ok := d.pending[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownDecision
	}
	select {
	case p.answer <- dec:
		return nil
	default:
		return ErrAlreadyAnswered
	}
}

package driver

import (
	"context"
	"time"

	"github.com/agenthands/lineage/internal/core/model"
)

// GraphStore is the person/source graph. Reads are single statements;
// writes go through Tx so one document's changes land atomically.
type GraphStore interface {
	// FindByIdentity returns nil, nil when no person carries the key.
	FindByIdentity(ctx context.Context, key string) (*model.CanonicalRecord, error)
	FindByName(ctx context.Context, nameKey string) ([]*model.CanonicalRecord, error)
	BeginTx(ctx context.Context) (Tx, error)
	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is one write transaction. Every upsert reports whether it created
// something, so callers can count what a commit changed.
type Tx interface {
	// UpsertPerson locates the person by identity key or creates it with
	// p.ID. It returns the stored id.
	UpsertPerson(ctx context.Context, p model.PersonNode) (id string, created bool, err error)
	// EnsurePerson creates a stub person for key if none exists.
	EnsurePerson(ctx context.Context, p model.PersonNode) (id string, created bool, err error)
	UpsertSource(ctx context.Context, s model.SourceNode) (created bool, err error)
	UpsertCitation(ctx context.Context, c model.CitationEdge) (created bool, err error)
	// UpsertRelationship creates the edge unless an equivalent one exists.
	UpsertRelationship(ctx context.Context, r model.RelationshipMention, now time.Time) (created bool, err error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

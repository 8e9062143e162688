// Package commit writes a resolved person, its source citation and family
// edges to the graph in one transaction.
package commit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/driver"
	"github.com/agenthands/lineage/internal/logger"
)

const DefaultTimeout = 30 * time.Second

type TxBeginner interface {
	BeginTx(ctx context.Context) (driver.Tx, error)
}

type Committer struct {
	store   TxBeginner
	log     *logger.Logger
	timeout time.Duration

	now   func() time.Time
	newID func() string
}

func NewCommitter(store TxBeginner, timeout time.Duration, log *logger.Logger) *Committer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Committer{
		store:   store,
		log:     log,
		timeout: timeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Commit is idempotent: committing the same resolved record, document and
// relationships twice leaves the graph as after the first commit. It runs
// detached from ctx cancellation so a shutdown never cuts a transaction in
// half; the committer timeout bounds it instead.
func (c *Committer) Commit(ctx context.Context, resolved model.ResolvedRecord, doc model.SourceDocument, rels []model.RelationshipMention, confidence float64) (res model.CommitResult, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return res, &model.GraphWriteError{Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				c.log.Warn("rollback failed", "url", doc.URL, "error", rbErr)
			}
		}
	}()

	now := c.now().UTC()
	id := resolved.ID
	if id == "" {
		id = c.newID()
	}

	res.PersonID, res.Created, err = tx.UpsertPerson(ctx, model.PersonNode{
		ID:                  id,
		IdentityKey:         resolved.IdentityKey,
		Values:              resolved.Values,
		BirthYearCalculated: resolved.BirthYearCalculated,
		Touch:               resolved.Changed(),
		Now:                 now,
	})
	if err != nil {
		return res, &model.GraphWriteError{Op: "upsert person", Err: err}
	}

	if _, err = tx.UpsertSource(ctx, model.SourceNode{
		ID:        doc.ID,
		URL:       doc.URL,
		Site:      doc.Source,
		Name:      doc.Metadata.Name,
		Published: doc.Metadata.PublicationDate,
		Now:       now,
	}); err != nil {
		return res, &model.GraphWriteError{Op: "upsert source", Err: err}
	}

	res.CitationCreated, err = tx.UpsertCitation(ctx, model.CitationEdge{
		PersonID:            res.PersonID,
		SourceID:            doc.ID,
		Confidence:          confidence,
		BirthYearCalculated: resolved.BirthYearCalculated,
		Now:                 now,
	})
	if err != nil {
		return res, &model.GraphWriteError{Op: "upsert citation", Err: err}
	}

	seen := map[string]bool{}
	for _, r := range rels {
		if !r.Kind.Valid() || r.FromKey == "" || r.ToKey == "" || r.FromKey == r.ToKey {
			c.log.Debug("skipping relationship", "kind", r.Kind, "from", r.FromKey, "to", r.ToKey)
			continue
		}
		key := r.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		for _, endpoint := range []string{r.FromKey, r.ToKey} {
			if endpoint == resolved.IdentityKey {
				continue
			}
			if _, _, err = tx.EnsurePerson(ctx, model.PersonNode{
				ID:          c.newID(),
				IdentityKey: endpoint,
				Values:      map[model.Field]string{model.FieldFullName: r.Name},
				Now:         now,
			}); err != nil {
				return res, &model.GraphWriteError{Op: "ensure person", Err: err}
			}
		}

		created, uErr := tx.UpsertRelationship(ctx, r, now)
		if uErr != nil {
			err = uErr
			return res, &model.GraphWriteError{Op: "upsert relationship", Err: err}
		}
		if created {
			res.EdgesCreated++
		} else {
			res.EdgesExisting++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return res, &model.GraphWriteError{Op: "commit", Err: err}
	}
	c.log.Info("committed person",
		"person_id", res.PersonID, "identity_key", resolved.IdentityKey, "url", doc.URL,
		"created", res.Created, "edges_created", res.EdgesCreated)
	return res, nil
}

package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
)

type Flavor string

const (
	FlavorNeo4j    Flavor = "neo4j"
	FlavorMemgraph Flavor = "memgraph"
)

// Neo4jStore is a GraphStore over the Bolt protocol. It works against both
// Neo4j and Memgraph; only schema creation differs.
type Neo4jStore struct {
	Driver   neo4j.DriverWithContext
	Database string
	Flavor   Flavor
	log      *logger.Logger
}

func NewNeo4jStore(ctx context.Context, uri, username, password, database string, flavor Flavor, log *logger.Logger) (*Neo4jStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	if flavor == "" {
		flavor = FlavorNeo4j
	}
	log.Info("connected to graph store", "uri", uri, "flavor", flavor)
	return &Neo4jStore{Driver: driver, Database: database, Flavor: flavor, log: log}, nil
}

func (d *Neo4jStore) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

// ExecuteQuery runs a single auto-committed statement.
func (d *Neo4jStore) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if d.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *Neo4jStore) BuildIndices(ctx context.Context) error {
	queries := neo4jSchema
	if d.Flavor == FlavorMemgraph {
		queries = memgraphSchema
	}

	for _, q := range queries {
		_, err := d.ExecuteQuery(ctx, q, nil)
		if err != nil {
			// Memgraph has no IF NOT EXISTS; a second run reports duplicates.
			d.log.Warn("failed to create index", "query", q, "error", err)
		}
	}

	return nil
}

func (d *Neo4jStore) FindByIdentity(ctx context.Context, key string) (*model.CanonicalRecord, error) {
	res, err := d.ExecuteQuery(ctx, FindPersonByIdentityQuery, map[string]interface{}{"identity_key": key})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return decodePerson(res.Records[0])
}

func (d *Neo4jStore) FindByName(ctx context.Context, nameKey string) ([]*model.CanonicalRecord, error) {
	res, err := d.ExecuteQuery(ctx, FindPersonsByNameQuery, map[string]interface{}{"name_key": nameKey})
	if err != nil {
		return nil, err
	}
	out := make([]*model.CanonicalRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		p, err := decodePerson(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *Neo4jStore) BeginTx(ctx context.Context) (Tx, error) {
	session := d.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.Database,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &neo4jTx{session: session, tx: tx}, nil
}

type neo4jTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
}

func (t *neo4jTx) single(ctx context.Context, query string, params map[string]interface{}) (*neo4j.Record, error) {
	res, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return res.Single(ctx)
}

func (t *neo4jTx) UpsertPerson(ctx context.Context, p model.PersonNode) (string, bool, error) {
	props := map[string]interface{}{
		"birth_year_calculated": p.BirthYearCalculated,
	}
	for f, v := range p.Values {
		if v != "" {
			props[string(f)] = v
		}
	}
	rec, err := t.single(ctx, UpsertPersonQuery, map[string]interface{}{
		"identity_key": p.IdentityKey,
		"name_key":     nameKey(p.IdentityKey),
		"id":           p.ID,
		"props":        props,
		"touch":        p.Touch,
		"now":          p.Now,
	})
	if err != nil {
		return "", false, err
	}
	return personResult(rec)
}

func (t *neo4jTx) EnsurePerson(ctx context.Context, p model.PersonNode) (string, bool, error) {
	rec, err := t.single(ctx, EnsurePersonQuery, map[string]interface{}{
		"identity_key": p.IdentityKey,
		"name_key":     nameKey(p.IdentityKey),
		"id":           p.ID,
		"full_name":    p.Values[model.FieldFullName],
		"now":          p.Now,
	})
	if err != nil {
		return "", false, err
	}
	return personResult(rec)
}

// personResult reads the id and created flag returned by the person upserts.
// The caller's id says nothing about creation: updates pass the stored id.
func personResult(rec *neo4j.Record) (string, bool, error) {
	id, _, err := neo4j.GetRecordValue[string](rec, "id")
	if err != nil {
		return "", false, err
	}
	created, _, err := neo4j.GetRecordValue[bool](rec, "created")
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

func (t *neo4jTx) UpsertSource(ctx context.Context, s model.SourceNode) (bool, error) {
	rec, err := t.single(ctx, UpsertSourceQuery, map[string]interface{}{
		"id":        s.ID,
		"url":       s.URL,
		"site":      s.Site,
		"name":      s.Name,
		"published": s.Published,
		"now":       s.Now,
	})
	if err != nil {
		return false, err
	}
	created, _, err := neo4j.GetRecordValue[bool](rec, "created")
	return created, err
}

func (t *neo4jTx) UpsertCitation(ctx context.Context, c model.CitationEdge) (bool, error) {
	rec, err := t.single(ctx, UpsertCitationQuery, map[string]interface{}{
		"person_id":             c.PersonID,
		"source_id":             c.SourceID,
		"confidence":            c.Confidence,
		"birth_year_calculated": c.BirthYearCalculated,
		"now":                   c.Now,
	})
	if err != nil {
		return false, err
	}
	created, _, err := neo4j.GetRecordValue[bool](rec, "created")
	return created, err
}

func (t *neo4jTx) UpsertRelationship(ctx context.Context, r model.RelationshipMention, now time.Time) (bool, error) {
	edgeType := r.Kind.EdgeType()
	if edgeType == "" {
		return false, fmt.Errorf("unknown relationship kind %q", r.Kind)
	}
	from, to := r.Endpoints()
	rec, err := t.single(ctx, fmt.Sprintf(upsertRelationshipQueryFmt, edgeType), map[string]interface{}{
		"from_key": from,
		"to_key":   to,
		"now":      now,
	})
	if err != nil {
		return false, err
	}
	created, _, err := neo4j.GetRecordValue[bool](rec, "created")
	return created, err
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Commit(ctx)
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Rollback(ctx)
}

func decodePerson(rec *neo4j.Record) (*model.CanonicalRecord, error) {
	node, _, err := neo4j.GetRecordValue[neo4j.Node](rec, "p")
	if err != nil {
		return nil, fmt.Errorf("failed to decode person: %w", err)
	}
	props := node.Props
	out := &model.CanonicalRecord{
		ID:          stringProp(props, "id"),
		IdentityKey: stringProp(props, "identity_key"),
		Values:      map[model.Field]string{},
		CreatedAt:   timeProp(props, "created_at"),
		UpdatedAt:   timeProp(props, "updated_at"),
	}
	for _, f := range model.AllFields {
		if v := stringProp(props, string(f)); v != "" {
			out.Values[f] = v
		}
	}
	if b, ok := props["birth_year_calculated"].(bool); ok {
		out.BirthYearCalculated = b
	}
	if raw, ok := rec.Get("citations"); ok {
		if list, ok := raw.([]interface{}); ok {
			for _, c := range list {
				if s, ok := c.(string); ok {
					out.Citations = append(out.Citations, s)
				}
			}
		}
	}
	return out, nil
}

func stringProp(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case int64:
		return fmt.Sprint(v)
	}
	return ""
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v
	case neo4j.LocalDateTime:
		return v.Time()
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

func nameKey(identityKey string) string {
	name, _, _ := strings.Cut(identityKey, "|")
	return name
}

package driver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agenthands/lineage/internal/core/model"
)

var ErrTxDone = errors.New("transaction already finished")

// MemoryStore keeps the graph in process. Transactions stage their writes
// and apply them under the store lock on Commit. It backs dry runs and
// tests.
type MemoryStore struct {
	mu        sync.RWMutex
	persons   map[string]*memPerson // by identity key
	sources   map[string]model.SourceNode
	citations map[string]model.CitationEdge // personID|sourceID
	edges     map[string]model.RelationshipMention

	// FailCommit, when set, is returned from every Commit.
	FailCommit error
	Commits    int
}

type memPerson struct {
	rec  model.CanonicalRecord
	stub bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:   map[string]*memPerson{},
		sources:   map[string]model.SourceNode{},
		citations: map[string]model.CitationEdge{},
		edges:     map[string]model.RelationshipMention{},
	}
}

func (m *MemoryStore) BuildIndices(ctx context.Context) error { return nil }
func (m *MemoryStore) Close(ctx context.Context) error        { return nil }

func (m *MemoryStore) FindByIdentity(ctx context.Context, key string) (*model.CanonicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[key]
	if !ok {
		return nil, nil
	}
	return m.withCitations(p), nil
}

func (m *MemoryStore) FindByName(ctx context.Context, name string) ([]*model.CanonicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.CanonicalRecord
	for key, p := range m.persons {
		if nameKey(key) == name {
			out = append(out, m.withCitations(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityKey < out[j].IdentityKey })
	return out, nil
}

func (m *MemoryStore) withCitations(p *memPerson) *model.CanonicalRecord {
	rec := p.rec.Clone()
	rec.Citations = nil
	for _, c := range m.citations {
		if c.PersonID == rec.ID {
			rec.AddCitation(c.SourceID)
		}
	}
	return rec
}

// Persons returns a snapshot of every person, sorted by identity key.
func (m *MemoryStore) Persons() []model.CanonicalRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CanonicalRecord, 0, len(m.persons))
	for _, p := range m.persons {
		out = append(out, *m.withCitations(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityKey < out[j].IdentityKey })
	return out
}

// Counts reports persons, sources, citations and relationship edges.
func (m *MemoryStore) Counts() (persons, sources, citations, edges int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.persons), len(m.sources), len(m.citations), len(m.edges)
}

func (m *MemoryStore) BeginTx(ctx context.Context) (Tx, error) {
	return &memTx{store: m}, nil
}

// memTx records operations and replays them on Commit. Reads inside the
// transaction see committed state plus the staged writes.
type memTx struct {
	store *MemoryStore
	ops   []func(*MemoryStore)
	done  bool

	persons map[string]*memPerson
	sources map[string]bool
	cites   map[string]bool
	edges   map[string]bool
}

func (t *memTx) staged() {
	if t.persons == nil {
		t.persons = map[string]*memPerson{}
		t.sources = map[string]bool{}
		t.cites = map[string]bool{}
		t.edges = map[string]bool{}
	}
}

func (t *memTx) lookupPerson(key string) (*memPerson, bool) {
	if p, ok := t.persons[key]; ok {
		return p, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.persons[key]
	if !ok {
		return nil, false
	}
	cp := &memPerson{rec: *p.rec.Clone(), stub: p.stub}
	return cp, true
}

func (t *memTx) UpsertPerson(ctx context.Context, p model.PersonNode) (string, bool, error) {
	if t.done {
		return "", false, ErrTxDone
	}
	t.staged()
	cur, exists := t.lookupPerson(p.IdentityKey)
	if !exists {
		cur = &memPerson{rec: model.CanonicalRecord{
			ID:          p.ID,
			IdentityKey: p.IdentityKey,
			Values:      map[model.Field]string{},
			CreatedAt:   p.Now,
			UpdatedAt:   p.Now,
		}}
	}
	for f, v := range p.Values {
		if v != "" {
			cur.rec.Values[f] = v
		}
	}
	cur.rec.BirthYearCalculated = p.BirthYearCalculated
	cur.stub = false
	if p.Touch {
		cur.rec.UpdatedAt = p.Now
	}
	t.persons[p.IdentityKey] = cur
	snapshot := &memPerson{rec: *cur.rec.Clone()}
	t.ops = append(t.ops, func(s *MemoryStore) { s.persons[snapshot.rec.IdentityKey] = snapshot })
	return cur.rec.ID, !exists, nil
}

func (t *memTx) EnsurePerson(ctx context.Context, p model.PersonNode) (string, bool, error) {
	if t.done {
		return "", false, ErrTxDone
	}
	t.staged()
	if cur, exists := t.lookupPerson(p.IdentityKey); exists {
		return cur.rec.ID, false, nil
	}
	stub := &memPerson{stub: true, rec: model.CanonicalRecord{
		ID:          p.ID,
		IdentityKey: p.IdentityKey,
		Values:      map[model.Field]string{model.FieldFullName: p.Values[model.FieldFullName]},
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}}
	t.persons[p.IdentityKey] = stub
	t.ops = append(t.ops, func(s *MemoryStore) {
		if _, ok := s.persons[stub.rec.IdentityKey]; !ok {
			s.persons[stub.rec.IdentityKey] = stub
		}
	})
	return p.ID, true, nil
}

func (t *memTx) UpsertSource(ctx context.Context, src model.SourceNode) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	t.staged()
	t.store.mu.RLock()
	_, exists := t.store.sources[src.ID]
	t.store.mu.RUnlock()
	created := !exists && !t.sources[src.ID]
	t.sources[src.ID] = true
	t.ops = append(t.ops, func(s *MemoryStore) { s.sources[src.ID] = src })
	return created, nil
}

func (t *memTx) UpsertCitation(ctx context.Context, c model.CitationEdge) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	t.staged()
	key := c.PersonID + "|" + c.SourceID
	t.store.mu.RLock()
	_, exists := t.store.citations[key]
	t.store.mu.RUnlock()
	created := !exists && !t.cites[key]
	t.cites[key] = true
	t.ops = append(t.ops, func(s *MemoryStore) { s.citations[key] = c })
	return created, nil
}

func (t *memTx) UpsertRelationship(ctx context.Context, r model.RelationshipMention, now time.Time) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if !r.Kind.Valid() {
		return false, errors.New("unknown relationship kind " + string(r.Kind))
	}
	t.staged()
	if _, ok := t.lookupPerson(r.FromKey); !ok {
		return false, errors.New("relationship endpoint missing: " + r.FromKey)
	}
	if _, ok := t.lookupPerson(r.ToKey); !ok {
		return false, errors.New("relationship endpoint missing: " + r.ToKey)
	}
	key := r.DedupKey()
	t.store.mu.RLock()
	_, exists := t.store.edges[key]
	t.store.mu.RUnlock()
	created := !exists && !t.edges[key]
	t.edges[key] = true
	t.ops = append(t.ops, func(s *MemoryStore) {
		if _, ok := s.edges[key]; !ok {
			s.edges[key] = r
		}
	})
	return created, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.FailCommit != nil {
		return t.store.FailCommit
	}
	for _, op := range t.ops {
		op(t.store)
	}
	t.store.Commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}

package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockFinder struct {
	ByKey       map[string]*model.CanonicalRecord
	Err         error
	NameLookups int
}

func (m *MockFinder) FindByIdentity(ctx context.Context, key string) (*model.CanonicalRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.ByKey[key], nil
}

func (m *MockFinder) FindByName(ctx context.Context, nameKey string) ([]*model.CanonicalRecord, error) {
	m.NameLookups++
	var out []*model.CanonicalRecord
	for k, rec := range m.ByKey {
		if Key(k).NameKey() == nameKey {
			out = append(out, rec)
		}
	}
	return out, nil
}

func merged(name, birth, death string) model.MergedRecord {
	f := map[model.Field]model.FieldValue{}
	if name != "" {
		f[model.FieldFullName] = model.FieldValue{Value: name}
	}
	if birth != "" {
		f[model.FieldBirthDate] = model.FieldValue{Value: birth}
	}
	if death != "" {
		f[model.FieldDeathDate] = model.FieldValue{Value: death}
	}
	return model.MergedRecord{Fields: f}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"  Maxine   KACZMAROWSKI ": "maxine kaczmarowski",
		"Mrs. Rose Dompke":        "rose dompke",
		"Dr. John O'Brien, Jr.":   "john o'brien jr",
		"Mary-Kate Smith":         "mary-kate smith",
		"Rev. Fr. Joseph Nowak":   "joseph nowak",
		"Sr. Agnes":               "sr agnes",
		"":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestKey(t *testing.T) {
	r := NewResolver(&MockFinder{}, nil, nil)

	k, err := r.Key(merged("Maxine Kaczmarowski", "", "May 24, 2018"))
	require.NoError(t, err)
	assert.Equal(t, Key("maxine kaczmarowski|d:2018"), k)

	k, err = r.Key(merged("Maxine Kaczmarowski", "1928", "May 24, 2018"))
	require.NoError(t, err)
	assert.Equal(t, Key("maxine kaczmarowski|b:1928|d:2018"), k)
	assert.Equal(t, "maxine kaczmarowski", k.NameKey())
	b, d := k.Years()
	assert.Equal(t, 1928, b)
	assert.Equal(t, 2018, d)

	_, err = r.Key(merged("", "1928", ""))
	assert.ErrorIs(t, err, model.ErrIdentity)
	_, err = r.Key(merged("Mr.", "", ""))
	assert.ErrorIs(t, err, model.ErrIdentity)
}

func TestKeyIsPure(t *testing.T) {
	f := &MockFinder{Err: errors.New("store down")}
	r := NewResolver(f, nil, nil)
	_, err := r.Key(merged("A B", "", ""))
	assert.NoError(t, err)
}

func TestFindCanonical(t *testing.T) {
	existing := &model.CanonicalRecord{ID: "p1", IdentityKey: "maxine kaczmarowski|d:2018"}
	f := &MockFinder{ByKey: map[string]*model.CanonicalRecord{existing.IdentityKey: existing}}
	r := NewResolver(f, nil, nil)
	ctx := context.Background()

	rec, err := r.FindCanonical(ctx, "maxine kaczmarowski|d:2018")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.ID)
	assert.Equal(t, 0, f.NameLookups)

	// Same name, disagreeing death year: still the only Maxine on file.
	rec, err = r.FindCanonical(ctx, "maxine kaczmarowski|d:1928")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "p1", rec.ID)

	rec, err = r.FindCanonical(ctx, "someone else")
	require.NoError(t, err)
	assert.Nil(t, rec)

	r.NameFallback = false
	rec, err = r.FindCanonical(ctx, "maxine kaczmarowski|d:1928")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindCanonicalAmbiguous(t *testing.T) {
	f := &MockFinder{ByKey: map[string]*model.CanonicalRecord{
		"john smith|b:1901": {ID: "a", IdentityKey: "john smith|b:1901"},
		"john smith|b:1950": {ID: "b", IdentityKey: "john smith|b:1950"},
	}}
	r := NewResolver(f, nil, nil)

	rec, err := r.FindCanonical(context.Background(), "john smith|b:1950|d:2020")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "b", rec.ID)

	rec, err = r.FindCanonical(context.Background(), "john smith|d:2020")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindCanonicalStoreError(t *testing.T) {
	r := NewResolver(&MockFinder{Err: errors.New("boom")}, nil, nil)
	_, err := r.FindCanonical(context.Background(), "x")
	assert.Error(t, err)
}

func TestVariantNormalizer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "variants.yaml")
	yml := strings.Join([]string{
		"first_names:",
		"  terrence: [terry, terrance]",
		"  maxine: [max]",
		"last_names:",
		"  kaczmarowski: [kaczmarowsky]",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	v, err := LoadVariants(path)
	require.NoError(t, err)
	assert.Equal(t, "terrence kaczmarowski", v.Canonical("terry kaczmarowsky"))
	assert.Equal(t, "terrence j kaczmarowski jr", v.Canonical("terry j kaczmarowsky jr"))
	assert.Equal(t, "maxine", v.Canonical("max"))
	assert.Equal(t, "rose", v.Canonical("rose"))

	r := NewResolver(&MockFinder{}, v, nil)
	a, _ := r.Key(merged("Terry Kaczmarowski", "", "2001"))
	b, _ := r.Key(merged("Terrence Kaczmarowski", "", "2001"))
	assert.Equal(t, a, b)
}

func TestExampleVariantsFile(t *testing.T) {
	v, err := LoadVariants("../../../variants.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "william smith", v.Canonical("bill smith"))
	assert.Equal(t, "rose dompke", v.Canonical("rose dompke"))
}

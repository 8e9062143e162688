package driver

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonResultUsesCreatedFlag(t *testing.T) {
	tests := []struct {
		name    string
		created bool
	}{
		{"update of a known person", false},
		{"new person", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &neo4j.Record{Keys: []string{"id", "created"}, Values: []any{"person-1", tt.created}}
			id, created, err := personResult(rec)
			require.NoError(t, err)
			assert.Equal(t, "person-1", id)
			assert.Equal(t, tt.created, created)
		})
	}

	_, _, err := personResult(&neo4j.Record{Keys: []string{"id"}, Values: []any{"person-1"}})
	assert.Error(t, err)
}

func TestPersonUpsertsReportCreation(t *testing.T) {
	for _, q := range []string{UpsertPersonQuery, EnsurePersonQuery} {
		assert.Contains(t, q, "existing IS NULL AS created")
		assert.Contains(t, q, "RETURN p.id AS id, created")
	}
}

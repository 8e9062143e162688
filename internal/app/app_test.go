package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/lineage/internal/config"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/pipeline"
)

const obituaryPage = `<html>
<head><title>Maxine T. Kaczmarowski Obituary - Gary, IN</title></head>
<body>
<nav>Home | Obituaries</nav>
<article>
<p>Maxine T. Kaczmarowski (nee Dompke), 90, of Gary, Indiana, passed away on May 24, 2018 at the age of 90.</p>
<p>She was born in Chicago, Illinois.</p>
</article>
</body>
</html>`

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Pipeline.RequestsPerSecond = 0
	cfg.Pipeline.BackoffBase = config.Dur(1)
	return cfg
}

func TestApp_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/obit/maxine" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, obituaryPage)
	}))
	defer srv.Close()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t), nil, Options{})
	require.NoError(t, err)
	defer a.Close(ctx)

	good := srv.URL + "/obit/maxine"
	gone := srv.URL + "/obit/nobody"
	for _, u := range []string{good, gone} {
		added, err := a.Catalog.Add(ctx, u)
		require.NoError(t, err)
		require.True(t, added)
	}

	s, err := a.Pipeline.Run(ctx, pipeline.RunOptions{})
	require.NoError(t, err)

	r, ok := s.Get(good)
	require.True(t, ok)
	assert.Equal(t, model.StatusImported, r.Status)
	assert.True(t, r.Created)

	r, ok = s.Get(gone)
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, r.Status)

	person, err := a.Store.FindByIdentity(ctx, "maxine t kaczmarowski|b:1928|d:2018")
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, "24 May 2018", person.Value(model.FieldDeathDate))
	assert.Equal(t, "Chicago, Illinois", person.Value(model.FieldBirthPlace))
	assert.True(t, person.BirthYearCalculated)

	doc, err := a.Catalog.Get(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, model.StatusImported, doc.Status)
	assert.Contains(t, doc.Text, "passed away on May 24, 2018")
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Workers = 0

	_, err := New(context.Background(), cfg, nil, Options{})
	var cerr *model.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "pipeline.workers", cerr.Field)
}

func TestApp_MissingVariantsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Identity.VariantsFile = filepath.Join(t.TempDir(), "missing.yaml")

	a, err := New(context.Background(), cfg, nil, Options{})
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestApp_ScriptedDecisions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: keep_existing\n"), 0o644))

	cfg := testConfig(t)
	cfg.Resolve.Mode = "interactive"
	cfg.Resolve.DecisionsFile = path

	a, err := New(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.NotNil(t, a.Engine)
}

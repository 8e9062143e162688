package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const obituaryPage = `<html>
<head>
<title>Maxine Kaczmarowski Obituary (2018) - Milwaukee, WI - Milwaukee Journal Sentinel</title>
<meta property="article:published_time" content="2018-06-10">
<script>var tracking = "Kaczmarowski";</script>
</head>
<body>
<nav>Home Obituaries Search</nav>
<div class="ObituaryText">Kaczmarowski, Maxine V. (Nee Hucke) Found peace on June 8, 2018 at the age of 87.
Reunited with her husband Raymond. Survived by her son Mark.</div>
<footer>Published by Milwaukee Journal Sentinel</footer>
</body>
</html>`

func TestHTTPFetcher(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "lineage-test", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(obituaryPage))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, 0, "lineage-test", nil)
	ctx := context.Background()

	body, err := f.Fetch(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, body, "Kaczmarowski")

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, model.IsRetryable(err))

	_, err = f.Fetch(ctx, srv.URL+"/down")
	var netErr *model.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusBadGateway, netErr.Status)
	assert.True(t, model.IsRetryable(err))

	_, err = f.Fetch(ctx, srv.URL+"/forbidden")
	require.Error(t, err)
	assert.False(t, model.IsRetryable(err))
}

func TestHTTPFetcherTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(time.Second, 0, "", nil).Fetch(context.Background(), url)
	assert.True(t, model.IsRetryable(err))
}

type countingFetcher struct {
	calls int
	err   error
}

func (c *countingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "body of " + url, nil
}

func TestCachingFetcher(t *testing.T) {
	next := &countingFetcher{}
	f, err := NewCachingFetcher(next, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		body, err := f.Fetch(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "body of a", body)
	}
	assert.Equal(t, 1, next.calls)

	_, _ = f.Fetch(ctx, "b")
	_, _ = f.Fetch(ctx, "c")
	assert.Equal(t, 2, f.Len())
	_, _ = f.Fetch(ctx, "a") // evicted
	assert.Equal(t, 4, next.calls)
}

func TestCachingFetcherDoesNotCacheErrors(t *testing.T) {
	next := &countingFetcher{err: errors.New("boom")}
	f, err := NewCachingFetcher(next, 4)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "a")
	assert.Error(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestHTMLTextExtractor(t *testing.T) {
	text, meta, err := HTMLTextExtractor{}.Extract(obituaryPage)
	require.NoError(t, err)

	assert.Contains(t, text, "Kaczmarowski, Maxine V. (Nee Hucke) Found peace on June 8, 2018")
	assert.Contains(t, text, "Survived by her son Mark.")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "Published by")
	assert.NotContains(t, text, "\n")

	assert.Equal(t, "Maxine Kaczmarowski", meta.Name)
	assert.Equal(t, "Milwaukee, WI", meta.Location)
	assert.Equal(t, "2018-06-10", meta.PublicationDate)
}

func TestHTMLTextExtractorFallsBackToLongestBlock(t *testing.T) {
	page := `<html><body>
<p>Short teaser.</p>
<p>John Smith, 80, of Springfield passed away on March 3, 2020. He was born in Chicago and
worked for forty years at the mill. He is survived by his wife Mary Smith and two sons.</p>
</body></html>`
	text, _, err := HTMLTextExtractor{}.Extract(page)
	require.NoError(t, err)
	assert.True(t, len(text) > 100)
	assert.Contains(t, text, "John Smith, 80, of Springfield")
	assert.NotContains(t, text, "teaser")
}

func TestHTMLTextExtractorTooShort(t *testing.T) {
	_, _, err := HTMLTextExtractor{}.Extract(`<html><body><p>Nothing here.</p></body></html>`)
	assert.ErrorIs(t, err, model.ErrExtraction)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("example.org", PlainText{})

	assert.IsType(t, PlainText{}, r.For("https://www.example.org/obit/1"))
	assert.IsType(t, HTMLTextExtractor{}, r.For("https://www.legacy.com/us/obituaries/x"))

	plain := "Jane Doe of Madison died on May 1, 2001 at the age of 90. She was a teacher."
	text, _, err := r.Extract("https://www.legacy.com/x", plain)
	require.NoError(t, err)
	assert.Equal(t, plain, text)

	_, _, err = r.Extract("https://example.org/x", "too short")
	assert.ErrorIs(t, err, model.ErrExtraction)
}

package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual_market/pkg/logging"
)

func TestFetch_NoUpstreamServesFixtures(t *testing.T) {
	c := NewClient("", time.Second, logging.NewNop())

	feed := c.Fetch(context.Background())
	require.NotEmpty(t, feed.Articles)
	assert.Equal(t, fallbackFeed, feed)
}

func TestFetch_UpstreamPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"articles":[{"title":"Upstream headline","url":"https://example.com/a"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.NewNop())
	feed := c.Fetch(context.Background())

	require.Len(t, feed.Articles, 1)
	assert.Equal(t, "Upstream headline", feed.Articles[0].Title)
}

func TestFetch_UpstreamErrorServesFixtures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.NewNop())
	feed := c.Fetch(context.Background())
	assert.Equal(t, fallbackFeed, feed)
}

func TestFetch_UpstreamDownServesFixtures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, 100*time.Millisecond, logging.NewNop())
	feed := c.Fetch(context.Background())
	assert.Equal(t, fallbackFeed, feed)
}

func TestFetch_MalformedBodyServesFixtures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.NewNop())
	feed := c.Fetch(context.Background())
	assert.Equal(t, fallbackFeed, feed)
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"articles":[{"title":"Recovered","url":"https://example.com/r"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.NewNop())
	feed := c.Fetch(context.Background())

	require.Len(t, feed.Articles, 1)
	assert.Equal(t, "Recovered", feed.Articles[0].Title)
	assert.Equal(t, 3, calls)
}

func TestFetch_EmptyArticlesStaysEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"articles":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.NewNop())
	feed := c.Fetch(context.Background())
	assert.NotNil(t, feed.Articles)
	assert.Empty(t, feed.Articles)
}

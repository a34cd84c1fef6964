package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPFetcherGet verifies the body round-trip and that a rotated
// user agent is sent.
func TestHTTPFetcherGet(t *testing.T) {
	var gotAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer ts.Close()

	f, err := NewHTTPFetcher(5*time.Second, nil)
	require.NoError(t, err)

	body, err := f.Get(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.True(t, strings.HasPrefix(gotAgent, "Mozilla/5.0"), "user agent should come from the pool")
}

// TestHTTPFetcherNonOK verifies non-2xx responses surface as a fetch
// error carrying the status.
func TestHTTPFetcherNonOK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	f, err := NewHTTPFetcher(5*time.Second, nil)
	require.NoError(t, err)

	_, err = f.Get(context.Background(), ts.URL)
	require.Error(t, err)
	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, http.StatusGone, ferr.Status)
}

// TestHTTPFetcherCancelled verifies a cancelled context aborts the fetch.
func TestHTTPFetcherCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer ts.Close()

	f, err := NewHTTPFetcher(5*time.Second, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Get(ctx, ts.URL)
	assert.Error(t, err)
}

// TestAgentPoolRandom verifies the pool only hands out configured agents.
func TestAgentPoolRandom(t *testing.T) {
	pool := NewAgentPool("agent-a", "agent-b")
	for i := 0; i < 20; i++ {
		got := pool.Random()
		assert.Contains(t, []string{"agent-a", "agent-b"}, got)
	}
}

// TestNewHTTPFetcherBadProxy verifies proxy URLs are validated up front.
func TestNewHTTPFetcherBadProxy(t *testing.T) {
	_, err := NewHTTPFetcher(time.Second, []string{"://not-a-url"})
	assert.Error(t, err)
}

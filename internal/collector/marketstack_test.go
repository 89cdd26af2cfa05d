package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMarketstack(t *testing.T, handler http.HandlerFunc) *MarketstackFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewMarketstackFetcher(srv.URL, "key", "", nil)
	f.Client = srv.Client()
	f.Retry.BaseDelay = time.Millisecond
	f.Now = func() time.Time { return time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestMarketstack_FetchLatestBar(t *testing.T) {
	f := newTestMarketstack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/latest", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		assert.Equal(t, "key", r.URL.Query().Get("access_key"))
		w.Write([]byte(`{"data":[{"symbol":"AAPL","name":"Apple Inc","exchange":"XNAS",
			"date":"2024-06-27T00:00:00+0000","open":214.69,"high":215.74,"low":212.35,
			"close":214.1,"volume":49772707}]}`))
	})

	bar, err := f.FetchLatestBar(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", bar.Name)
	assert.Equal(t, "XNAS", bar.Exchange)
	assert.Equal(t, time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC), bar.Date)
	assert.Equal(t, 212.35, bar.Low)
	assert.Equal(t, int64(49772707), bar.Volume)
}

func TestMarketstack_FetchHistory(t *testing.T) {
	f := newTestMarketstack(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/eod", r.URL.Path)
		assert.Equal(t, "2024-03-30", q.Get("date_from"))
		assert.Equal(t, "2024-06-28", q.Get("date_to"))
		w.Write([]byte(`{"data":[
			{"symbol":"AAPL","date":"2024-06-26T00:00:00+0000","close":213.25,"volume":null},
			{"symbol":"AAPL","date":"2024-06-27T00:00:00+0000","close":null},
			{"symbol":"AAPL","date":"2024-06-27T00:00:00+0000","close":214.1}]}`))
	})

	h, err := f.FetchHistory(context.Background(), "AAPL", 90)
	require.NoError(t, err)
	require.Len(t, h, 2, "partial row dropped")
	assert.Equal(t, int64(0), h[0].Volume)
}

func TestMarketstack_APIError(t *testing.T) {
	f := newTestMarketstack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":"invalid_access_key","message":"bad key"}}`))
	})
	_, err := f.FetchLatestBar(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_access_key")
}

func TestMarketstack_NoData(t *testing.T) {
	f := newTestMarketstack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	_, err := f.FetchLatestBar(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestMarketstack_ClientError(t *testing.T) {
	f := newTestMarketstack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := f.FetchHistory(context.Background(), "AAPL", 90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

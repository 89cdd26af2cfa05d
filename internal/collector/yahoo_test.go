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

const yahooBody = `{"chart":{"result":[{"meta":{"symbol":"MSFT","exchangeName":"NMS",
"fullExchangeName":"NasdaqGS","longName":"Microsoft Corporation"},
"timestamp":[1719408600,1719495000,1719581400],
"indicators":{"quote":[{"open":[449.0,null,452.0],"high":[452.1,null,455.0],
"low":[447.5,null,450.3],"close":[452.16,null,446.95],"volume":[16507000,null,28362300]}]}}],
"error":null}}`

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *YahooFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewYahooFetcher("", nil)
	f.BaseURL = srv.URL
	f.Client = srv.Client()
	f.Retry.BaseDelay = time.Millisecond
	f.Now = func() time.Time { return time.Date(2024, 6, 29, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestYahoo_FetchLatestBar(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/MSFT", r.URL.Path)
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		w.Write([]byte(yahooBody))
	})

	bar, err := f.FetchLatestBar(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft Corporation", bar.Name)
	assert.Equal(t, "NasdaqGS", bar.Exchange)
	assert.Equal(t, 446.95, bar.Close)
	assert.Equal(t, int64(28362300), bar.Volume)
}

func TestYahoo_FetchHistorySkipsNullBars(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3mo", r.URL.Query().Get("range"))
		w.Write([]byte(yahooBody))
	})

	h, err := f.FetchHistory(context.Background(), "MSFT", 90)
	require.NoError(t, err)
	assert.Len(t, h, 2)
}

func TestYahoo_SymbolMap(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BRK-B", r.URL.Path)
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	})
	_, err := f.FetchLatestBar(context.Background(), "BRK.B")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestYahooRange(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{20, "1mo"}, {90, "3mo"}, {120, "6mo"}, {300, "1y"}, {500, "2y"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, yahooRange(tt.days), "days=%d", tt.days)
	}
}

package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/domain"
)

const rssDoc = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>World</title>
<item><title>Newest</title><link>https://example.com/a</link><description>&lt;p&gt;Body &amp;amp; more&lt;/p&gt;</description></item>
<item><title>Older</title><link>https://example.com/b</link></item>
</channel></rss>`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newReader() *Reader {
	return NewReader(config.FeedConfig{Timeout: time.Second}, "test-agent", nil)
}

func TestLatestTakesFirstEntry(t *testing.T) {
	t.Parallel()

	srv := serve(t, rssDoc)
	entry, err := newReader().Latest(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Newest", entry.Title)
	require.Equal(t, "https://example.com/a", entry.Link)
	require.Contains(t, entry.Description, "Body")
}

func TestLatestNoEntries(t *testing.T) {
	t.Parallel()

	srv := serve(t, `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`)
	_, err := newReader().Latest(context.Background(), srv.URL)
	require.ErrorIs(t, err, domain.ErrNoEntries)
}

func TestLatestMalformed(t *testing.T) {
	t.Parallel()

	srv := serve(t, `this is not a feed`)
	_, err := newReader().Latest(context.Background(), srv.URL)
	require.ErrorIs(t, err, domain.ErrNoEntries)
}

func TestLatestMissingLink(t *testing.T) {
	t.Parallel()

	srv := serve(t, `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title><item><title>No link</title></item></channel></rss>`)
	_, err := newReader().Latest(context.Background(), srv.URL)
	require.ErrorIs(t, err, domain.ErrMissingLink)
}

package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicle-labs/chronicler/internal/archive"
	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/httpclient"
)

func fastClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{MaxRetries: 1, SleepTime: time.Millisecond})
}

// drainFetch collects all items and the terminal error of one Fetch.
func drainFetch(t *testing.T, b *Backend, req driven.FetchRequest) ([]domain.RawItem, error) {
	t.Helper()

	items, errs := b.Fetch(context.Background(), req)
	var got []domain.RawItem
	for item := range items {
		got = append(got, item)
	}
	return got, <-errs
}

func TestNew(t *testing.T) {
	t.Run("accepts owner/repo", func(t *testing.T) {
		b, err := New("acme/widget", fastClient())

		require.NoError(t, err)
		assert.Equal(t, "https://github.com/acme/widget", b.Origin())
		assert.Equal(t, "github", b.Name())
	})

	t.Run("accepts a full URL", func(t *testing.T) {
		b, err := New("https://github.com/acme/widget", fastClient())

		require.NoError(t, err)
		assert.Equal(t, "https://github.com/acme/widget", b.Origin())
	})

	t.Run("rejects malformed origins", func(t *testing.T) {
		for _, origin := range []string{"", "acme", "acme/widget/extra", "/"} {
			_, err := New(origin, fastClient())
			assert.Error(t, err, "origin %q", origin)
		}
	})

	t.Run("declares both capabilities", func(t *testing.T) {
		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)

		caps := b.Capabilities()
		assert.True(t, caps.SupportsResuming)
		assert.True(t, caps.SupportsArchiving)
		assert.Equal(t, []string{CategoryIssue, CategoryPullRequest}, b.Categories())
	})
}

func TestItemMetadata(t *testing.T) {
	b, err := New("acme/widget", fastClient())
	require.NoError(t, err)

	t.Run("native id from numeric field", func(t *testing.T) {
		id, err := b.NativeID(domain.RawItem{Fields: map[string]any{"id": float64(42)}})

		require.NoError(t, err)
		assert.Equal(t, "42", id)
	})

	t.Run("missing id is a parse error", func(t *testing.T) {
		_, err := b.NativeID(domain.RawItem{Fields: map[string]any{}})

		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("updated_on from timestamp field", func(t *testing.T) {
		got, err := b.UpdatedOn(domain.RawItem{Fields: map[string]any{
			"updated_at": "2024-06-05T10:00:00Z",
		}})

		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC), got)
	})

	t.Run("malformed updated_at is a parse error", func(t *testing.T) {
		_, err := b.UpdatedOn(domain.RawItem{Fields: map[string]any{
			"updated_at": "yesterday",
		}})

		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("category by payload shape", func(t *testing.T) {
		issue := domain.RawItem{Fields: map[string]any{"id": float64(1)}}
		prLinked := domain.RawItem{Fields: map[string]any{"pull_request": map[string]any{}}}
		pull := domain.RawItem{Fields: map[string]any{"head": map[string]any{}}}

		assert.Equal(t, CategoryIssue, b.Category(issue))
		assert.Equal(t, CategoryPullRequest, b.Category(prLinked))
		assert.Equal(t, CategoryPullRequest, b.Category(pull))
	})
}

func TestParseNextLink(t *testing.T) {
	t.Run("extracts the next url", func(t *testing.T) {
		header := `<https://api.github.com/repos/a/b/issues?page=2>; rel="next", ` +
			`<https://api.github.com/repos/a/b/issues?page=9>; rel="last"`

		assert.Equal(t, "https://api.github.com/repos/a/b/issues?page=2", ParseNextLink(header))
	})

	t.Run("empty when absent", func(t *testing.T) {
		assert.Empty(t, ParseNextLink(""))
		assert.Empty(t, ParseNextLink(`<https://x>; rel="prev"`))
	})
}

// issueJSON builds a minimal issues-endpoint payload entry.
func issueJSON(id, number int, updated string, comments int) string {
	return fmt.Sprintf(`{"id":%d,"number":%d,"updated_at":%q,"comments":%d,"title":"t%d"}`,
		id, number, updated, comments, number)
}

func TestFetchIssues(t *testing.T) {
	t.Run("yields issues with nested comments", func(t *testing.T) {
		var issuesQuery string
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, r *http.Request) {
			issuesQuery = r.URL.RawQuery
			fmt.Fprintf(w, "[%s,%s]",
				issueJSON(101, 1, "2024-06-01T00:00:00Z", 0),
				issueJSON(102, 2, "2024-06-02T00:00:00Z", 2))
		})
		mux.HandleFunc("/repos/acme/widget/issues/2/comments", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `[{"id":501,"body":"lgtm"},{"id":502,"body":"ship it"}]`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)
		b.SetAPIBase(server.URL)

		items, termErr := drainFetch(t, b, driven.FetchRequest{Category: CategoryIssue})

		done, ok := driven.IsFetchDone(termErr)
		require.True(t, ok, "expected completion, got %v", termErr)
		require.Len(t, items, 2)

		assert.Contains(t, issuesQuery, "sort=updated")
		assert.Contains(t, issuesQuery, "direction=asc")
		assert.Contains(t, issuesQuery, "state=all")

		assert.Equal(t, float64(101), items[0].Fields["id"])
		assert.Empty(t, items[0].Fields["comments_data"])
		assert.Equal(t, "2024-06-01T00:00:00Z", items[0].Cursor)

		comments, ok := items[1].Fields["comments_data"].([]any)
		require.True(t, ok)
		assert.Len(t, comments, 2)

		assert.Equal(t, "2024-06-02T00:00:00Z", done.Cursor)
	})

	t.Run("skips pull requests on the issues endpoint", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `[{"id":7,"number":7,"updated_at":"2024-06-01T00:00:00Z","comments":0,"pull_request":{"url":"x"}},%s]`,
				issueJSON(8, 8, "2024-06-02T00:00:00Z", 0))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)
		b.SetAPIBase(server.URL)

		items, termErr := drainFetch(t, b, driven.FetchRequest{Category: CategoryIssue})

		_, ok := driven.IsFetchDone(termErr)
		require.True(t, ok)
		require.Len(t, items, 1)
		assert.Equal(t, float64(8), items[0].Fields["id"])
	})

	t.Run("follows pagination links", func(t *testing.T) {
		var server *httptest.Server
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprintf(w, "[%s]", issueJSON(2, 2, "2024-06-02T00:00:00Z", 0))
				return
			}
			w.Header().Set("Link",
				fmt.Sprintf(`<%s/repos/acme/widget/issues?page=2>; rel="next"`, server.URL))
			fmt.Fprintf(w, "[%s]", issueJSON(1, 1, "2024-06-01T00:00:00Z", 0))
		})
		server = httptest.NewServer(mux)
		defer server.Close()

		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)
		b.SetAPIBase(server.URL)

		items, termErr := drainFetch(t, b, driven.FetchRequest{Category: CategoryIssue})

		_, ok := driven.IsFetchDone(termErr)
		require.True(t, ok)
		require.Len(t, items, 2)
		assert.Equal(t, float64(1), items[0].Fields["id"])
		assert.Equal(t, float64(2), items[1].Fields["id"])
	})

	t.Run("cursor becomes the since parameter", func(t *testing.T) {
		var since string
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, r *http.Request) {
			since = r.URL.Query().Get("since")
			fmt.Fprint(w, `[]`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)
		b.SetAPIBase(server.URL)

		_, termErr := drainFetch(t, b, driven.FetchRequest{
			Category: CategoryIssue,
			Cursor:   "2024-06-15T12:00:00Z",
		})

		_, ok := driven.IsFetchDone(termErr)
		require.True(t, ok)
		assert.Equal(t, "2024-06-15T12:00:00Z", since)
	})

	t.Run("propagates request failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)
		b.SetAPIBase(server.URL)

		items, termErr := drainFetch(t, b, driven.FetchRequest{Category: CategoryIssue})

		assert.Empty(t, items)
		assert.ErrorIs(t, termErr, domain.ErrNotFound)
	})
}

func TestFetchPulls(t *testing.T) {
	t.Run("yields pulls with review comments above since", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `[
				{"id":11,"number":1,"updated_at":"2024-05-01T00:00:00Z","head":{"ref":"old"}},
				{"id":12,"number":2,"updated_at":"2024-06-10T00:00:00Z","head":{"ref":"new"}}
			]`)
		})
		mux.HandleFunc("/repos/acme/widget/pulls/2/comments", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `[{"id":601,"body":"nit"}]`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		b, err := New("acme/widget", fastClient())
		require.NoError(t, err)
		b.SetAPIBase(server.URL)

		window, err := domain.NewWindow(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Time{})
		require.NoError(t, err)

		items, termErr := drainFetch(t, b, driven.FetchRequest{
			Category: CategoryPullRequest,
			Window:   window,
		})

		done, ok := driven.IsFetchDone(termErr)
		require.True(t, ok)
		require.Len(t, items, 1, "the stale pull is filtered client-side")
		assert.Equal(t, float64(12), items[0].Fields["id"])

		comments, ok := items[0].Fields["review_comments_data"].([]any)
		require.True(t, ok)
		assert.Len(t, comments, 1)
		assert.Equal(t, "2024-06-10T00:00:00Z", done.Cursor)
	})
}

func TestFetchArchiveRoundTrip(t *testing.T) {
	t.Run("replay yields the same items without the network", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, "[%s,%s]",
				issueJSON(101, 1, "2024-06-01T00:00:00Z", 1),
				issueJSON(102, 2, "2024-06-02T00:00:00Z", 0))
		})
		mux.HandleFunc("/repos/acme/widget/issues/1/comments", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `[{"id":501,"body":"first"}]`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		path := filepath.Join(t.TempDir(), "run"+archive.StorageExt)
		store, err := archive.Open(path)
		require.NoError(t, err)

		liveClient := fastClient()
		liveClient.SetArchive(store)

		live, err := New("acme/widget", liveClient)
		require.NoError(t, err)
		live.SetAPIBase(server.URL)

		liveItems, termErr := drainFetch(t, live, driven.FetchRequest{Category: CategoryIssue})
		_, ok := driven.IsFetchDone(termErr)
		require.True(t, ok)
		require.NoError(t, store.Close())
		server.Close()

		reader, err := archive.NewReader(path)
		require.NoError(t, err)
		defer reader.Close()

		replayed, err := New("acme/widget", httpclient.NewReplay(reader))
		require.NoError(t, err)

		replayItems, termErr := drainFetch(t, replayed, driven.FetchRequest{Category: CategoryIssue})
		_, ok = driven.IsFetchDone(termErr)
		require.True(t, ok)

		require.Len(t, replayItems, len(liveItems))
		for i := range liveItems {
			assert.Equal(t, liveItems[i].Fields, replayItems[i].Fields)
			assert.Equal(t, liveItems[i].Cursor, replayItems[i].Cursor)
		}
	})
}

package search

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oreilly-library/internal/apperrors"
	"oreilly-library/internal/httpclient"
)

func newTestClient(t *testing.T) *httpclient.Client {
	t.Helper()
	client, err := httpclient.New(httpclient.Options{FollowRedirects: true})
	require.NoError(t, err)
	return client
}

func TestAdapter_FetchPage_V1UsesOneIndexedPages(t *testing.T) {
	var gotPage, gotRows string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		gotPage = r.URL.Query().Get("page")
		gotRows = r.URL.Query().Get("rows")
		fmt.Fprint(w, `{"results":[{"archive_id":"1001","isbn":"9780000000001","title":"Learning Go","format":"book"}]}`)
	}))
	defer srv.Close()

	a := New(newTestClient(t), srv.URL, V1)
	page, err := a.FetchPage("golang", 1, 100)
	require.NoError(t, err)

	assert.Equal(t, "1", gotPage)
	assert.Equal(t, "100", gotRows)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Learning Go", page.Items[0].Title)
	assert.False(t, page.HasNext)
}

func TestAdapter_FetchPage_V1ClampsSubOneIndexPageToOne(t *testing.T) {
	var gotPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	a := New(newTestClient(t), srv.URL, V1)
	_, err := a.FetchPage("golang", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "1", gotPage)
}

func TestAdapter_FetchPage_V2UsesZeroIndexedPagesAndNextLink(t *testing.T) {
	var gotPage, gotTopics string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/search/", r.URL.Path)
		gotPage = r.URL.Query().Get("page")
		gotTopics = r.URL.Query().Get("topics")
		fmt.Fprint(w, `{"results":[{"archive_id":"1001","title":"Learning Go"}],"next":"/api/v2/search/?page=1","total":42}`)
	}))
	defer srv.Close()

	a := New(newTestClient(t), srv.URL, V2)
	page, err := a.FetchPage("golang", 1, 100)
	require.NoError(t, err)

	assert.Equal(t, "0", gotPage)
	assert.Equal(t, "golang", gotTopics)
	assert.True(t, page.HasNext)
	assert.Equal(t, 42, page.TotalHint)
}

func TestAdapter_FetchPage_V2NoNextLinkMeansLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[],"next":null,"total":0}`)
	}))
	defer srv.Close()

	a := New(newTestClient(t), srv.URL, V2)
	page, err := a.FetchPage("golang", 3, 100)
	require.NoError(t, err)
	assert.False(t, page.HasNext)
}

func TestAdapter_FetchPage_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := New(newTestClient(t), srv.URL, V2)
	_, err := a.FetchPage("nonexistent-topic", 0, 100)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPermanent))
}

func TestAdapter_FetchPage_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(newTestClient(t), srv.URL, V1)
	_, err := a.FetchPage("golang", 1, 100)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransient))
}

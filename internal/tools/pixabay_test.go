package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixabayClient_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers the highest resolution url", func(t *testing.T) {
		var gotQuery, gotPerPage, gotLang string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("q")
			gotPerPage = r.URL.Query().Get("per_page")
			gotLang = r.URL.Query().Get("lang")
			io.WriteString(w, `{"hits":[
				{"webformatURL":"https://cdn/w1.jpg","largeImageURL":"https://cdn/l1.jpg"},
				{"imageURL":"https://cdn/i2.jpg","fullHDURL":"https://cdn/f2.jpg"},
				{"previewURL":"https://cdn/p3.jpg"}
			]}`)
		}))
		defer srv.Close()

		c := NewPixabayClient("key").WithBaseURL(srv.URL)
		res, err := c.Search(ctx, SearchImages{Query: "Montaña nevada al amanecer", PerPage: 1000, Page: 0, SafeSearch: true})
		require.NoError(t, err)

		assert.Equal(t, "montana nevada", gotQuery)
		assert.Equal(t, "200", gotPerPage)
		assert.Equal(t, "es", gotLang)
		assert.Equal(t, []string{"https://cdn/l1.jpg", "https://cdn/i2.jpg"}, res.URLs)
	})

	t.Run("retries with fallback query on 400", func(t *testing.T) {
		var queries []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.Query().Get("q"))
			if len(queries) == 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			assert.Equal(t, "3", r.URL.Query().Get("per_page"))
			io.WriteString(w, `{"hits":[{"webformatURL":"https://cdn/dog.jpg"}]}`)
		}))
		defer srv.Close()

		c := NewPixabayClient("key").WithBaseURL(srv.URL)
		res, err := c.Search(ctx, SearchImages{Query: "weird query", PerPage: 10, Page: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"weird query", "happy dog"}, queries)
		assert.Equal(t, "happy dog", res.Query)
		assert.Len(t, res.URLs, 1)
	})

	t.Run("429 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewPixabayClient("key").WithBaseURL(srv.URL)
		_, err := c.Search(ctx, SearchImages{Query: "cats", PerPage: 10, Page: 1})
		assert.ErrorIs(t, err, ErrImageSearchLimited)
	})

	t.Run("missing key is an error", func(t *testing.T) {
		_, err := NewPixabayClient("").Search(ctx, SearchImages{Query: "cats"})
		assert.ErrorIs(t, err, ErrImageSearchDisabled)
	})

	t.Run("empty query is an error", func(t *testing.T) {
		_, err := NewPixabayClient("key").Search(ctx, SearchImages{})
		assert.Error(t, err)
	})
}

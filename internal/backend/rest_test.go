package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/backoffice-console/internal/backend"
	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/httpclient"
	"github.com/stacklok/backoffice-console/internal/httpclient/mocks"
)

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestListParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query collection.Query
		extra url.Values
		want  string
	}{
		{
			name:  "first page is 1 on the wire",
			query: collection.Query{Page: 0, PageSize: 10},
			want:  "filter=&limit=10&page=1",
		},
		{
			name:  "filter and sort",
			query: collection.Query{FilterText: "tea cup", Page: 2, PageSize: 5, SortKey: "name", SortDirection: collection.SortDesc},
			want:  "filter=tea+cup&limit=5&order=desc&page=3&sort=name",
		},
		{
			name:  "sort without direction defaults to asc",
			query: collection.Query{PageSize: 5, SortKey: "code"},
			want:  "filter=&limit=5&order=asc&page=1&sort=code",
		},
		{
			name:  "domain params",
			query: collection.Query{PageSize: 10},
			extra: url.Values{"category_id": []string{"4"}},
			want:  "category_id=4&filter=&limit=10&page=1",
		},
		{
			name:  "zero query has no paging",
			query: collection.Query{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, backend.ListParams(tt.query, tt.extra).Encode())
		})
	}
}

func TestREST_Requests(t *testing.T) {
	t.Parallel()

	type seen struct {
		method     string
		path       string
		rawQuery   string
		mutationID string
		body       map[string]any
	}
	requests := make(chan seen, 1)

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{
			method:     r.Method,
			path:       r.URL.Path,
			rawQuery:   r.URL.RawQuery,
			mutationID: r.Header.Get(backend.MutationIDHeader),
		}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &s.body)
			}
		}
		requests <- s

		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1,"name":"Tea"}`))
		default:
			_, _ = w.Write([]byte(`{"data":[],"total":0}`))
		}
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(5 * time.Second)
	rest := backend.NewREST(client, server.URL+"/", "organization-units")
	ctx := context.Background()

	_, err := rest.List(ctx, collection.Query{Page: 1, PageSize: 10, FilterText: "hq"}, nil)
	require.NoError(t, err)
	got := <-requests
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/organization-units", got.path)
	assert.Equal(t, "filter=hq&limit=10&page=2", got.rawQuery)

	body, err := rest.Create(ctx, collection.Item{"name": "Tea"}, "m-create")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"Tea"}`, string(body))
	got = <-requests
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "m-create", got.mutationID)
	assert.Equal(t, "Tea", got.body["name"])

	_, err = rest.Update(ctx, "7", collection.Item{"name": "Green"}, "m-update")
	require.NoError(t, err)
	got = <-requests
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/api/organization-units/7", got.path)
	assert.Equal(t, "m-update", got.mutationID)

	require.NoError(t, rest.Delete(ctx, "7", "m-delete"))
	got = <-requests
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "/api/organization-units/7", got.path)
	assert.Equal(t, "m-delete", got.mutationID)
}

func TestREST_ErrorsKeepHTTPDetails(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"code must be unique"}`))
	}))
	defer server.Close()

	rest := backend.NewREST(httpclient.NewDefaultClient(5*time.Second), server.URL, "taxes")
	_, err := rest.Create(context.Background(), collection.Item{"code": "GST"}, "m")
	require.Error(t, err)

	var httpErr *httpclient.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "code must be unique", httpErr.ServerMessage)
	assert.Equal(t, "code must be unique", collection.UserMessage(err))
}

func TestREST_Upload(t *testing.T) {
	t.Parallel()

	type upload struct {
		method string
		path   string
		fields map[string]string
		file   []byte
		name   string
	}
	uploads := make(chan upload, 1)

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := upload{method: r.Method, path: r.URL.Path, fields: map[string]string{}}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			uploads <- u
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, v := range r.MultipartForm.Value {
			u.fields[k] = v[0]
		}
		f, header, err := r.FormFile("image")
		if err == nil {
			u.file, _ = io.ReadAll(f)
			u.name = header.Filename
			_ = f.Close()
		}
		uploads <- u
		_, _ = w.Write([]byte(`{"id":3}`))
	}))
	defer server.Close()

	rest := backend.NewREST(httpclient.NewDefaultClient(5*time.Second), server.URL, "products")
	payload := collection.Item{"name": "Mug", "price": 12.5, "tags": []any{"kitchen"}}
	files := []collection.File{{Field: "image", Name: "mug.png", ContentType: "image/png", Data: []byte("png-bytes")}}

	_, err := rest.Upload(context.Background(), "", payload, files, "m-up")
	require.NoError(t, err)
	u := <-uploads
	assert.Equal(t, http.MethodPost, u.method)
	assert.Equal(t, "/api/products", u.path)
	assert.Equal(t, map[string]string{"name": "Mug", "price": "12.5", "tags": `["kitchen"]`}, u.fields)
	assert.Equal(t, []byte("png-bytes"), u.file)
	assert.Equal(t, "mug.png", u.name)

	_, err = rest.Upload(context.Background(), "3", collection.Item{"name": "Cup"}, nil, "m-up2")
	require.NoError(t, err)
	u = <-uploads
	assert.Equal(t, http.MethodPut, u.method)
	assert.Equal(t, "/api/products/3", u.path)
}

func TestREST_RequestShapes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("update puts JSON to the item url", func(t *testing.T) {
		t.Parallel()

		client := mocks.NewMockClient(gomock.NewController(t))
		client.EXPECT().Do(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
				assert.Equal(t, http.MethodPut, req.Method)
				assert.Equal(t, "http://erp.test/api/menus/7", req.URL)
				assert.Equal(t, "application/json", req.ContentType)
				assert.Equal(t, "m-7", req.Header.Get(backend.MutationIDHeader))
				body, err := io.ReadAll(req.Body)
				require.NoError(t, err)
				assert.JSONEq(t, `{"name":"Supper"}`, string(body))
				return &httpclient.Response{StatusCode: http.StatusOK, Body: []byte(`{"id":7,"name":"Supper"}`)}, nil
			})

		rest := backend.NewREST(client, "http://erp.test", "menus")
		body, err := rest.Update(ctx, "7", collection.Item{"name": "Supper"}, "m-7")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":7,"name":"Supper"}`, string(body))
	})

	t.Run("whole collection list carries no paging", func(t *testing.T) {
		t.Parallel()

		client := mocks.NewMockClient(gomock.NewController(t))
		client.EXPECT().Do(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
				assert.Equal(t, http.MethodGet, req.Method)
				assert.Equal(t, "http://erp.test/api/menus", req.URL)
				return &httpclient.Response{StatusCode: http.StatusOK, Body: []byte(`[]`)}, nil
			})

		body, err := backend.NewREST(client, "http://erp.test", "menus").List(ctx, collection.Query{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(body))
	})

	t.Run("delete keeps the HTTP error", func(t *testing.T) {
		t.Parallel()

		client := mocks.NewMockClient(gomock.NewController(t))
		client.EXPECT().Do(ctx, gomock.Any()).
			Return(nil, &httpclient.HTTPError{StatusCode: http.StatusConflict, ServerMessage: "menu in use"})

		err := backend.NewREST(client, "http://erp.test", "menus").Delete(ctx, "3", "m-3")
		var httpErr *httpclient.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, "menu in use", httpErr.ServerMessage)
		assert.Contains(t, err.Error(), "delete menus/3")
	})
}

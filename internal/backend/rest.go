// Package backend implements the collection REST contract on top of the console HTTP client
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/httpclient"
)

const (
	// APIPrefix is the path prefix of every collection endpoint
	APIPrefix = "/api"

	// MutationIDHeader carries the intent id of create, update and delete requests
	MutationIDHeader = "X-Mutation-ID"
)

// REST talks to /api/{resource} on a back-office server
type REST struct {
	client   httpclient.Client
	base     string
	resource string
}

var _ collection.Backend = (*REST)(nil)

// NewREST returns the backend of resource at baseURL
func NewREST(client httpclient.Client, baseURL, resource string) *REST {
	return &REST{
		client:   client,
		base:     strings.TrimSuffix(baseURL, "/"),
		resource: resource,
	}
}

// Resource returns the collection name
func (r *REST) Resource() string {
	return r.resource
}

func (r *REST) collectionURL() string {
	return r.base + APIPrefix + "/" + url.PathEscape(r.resource)
}

func (r *REST) itemURL(id collection.ID) string {
	return r.collectionURL() + "/" + url.PathEscape(string(id))
}

// ListParams renders q as the query string of a list request. Pages are 1-based on the wire.
// The zero Query asks for the whole collection and carries no paging parameters.
func ListParams(q collection.Query, extra url.Values) url.Values {
	params := url.Values{}
	if !q.IsZero() {
		params.Set("page", strconv.Itoa(q.Page+1))
		params.Set("limit", strconv.Itoa(q.PageSize))
		params.Set("filter", q.FilterText)
		if q.SortKey != "" {
			params.Set("sort", q.SortKey)
			order := q.SortDirection
			if order == "" {
				order = collection.SortAsc
			}
			params.Set("order", string(order))
		}
	}
	for key, values := range extra {
		for _, v := range values {
			params.Add(key, v)
		}
	}
	return params
}

// List fetches one page, or the whole collection for the zero Query
func (r *REST) List(ctx context.Context, q collection.Query, extra url.Values) ([]byte, error) {
	target := r.collectionURL()
	if params := ListParams(q, extra); len(params) > 0 {
		target += "?" + params.Encode()
	}

	resp, err := r.client.Do(ctx, &httpclient.Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.resource, err)
	}
	return resp.Body, nil
}

// Create posts payload
func (r *REST) Create(ctx context.Context, payload collection.Item, mutationID string) ([]byte, error) {
	resp, err := r.sendJSON(ctx, http.MethodPost, r.collectionURL(), payload, mutationID)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", r.resource, err)
	}
	return resp.Body, nil
}

// Update puts payload to id
func (r *REST) Update(ctx context.Context, id collection.ID, payload collection.Item, mutationID string) ([]byte, error) {
	resp, err := r.sendJSON(ctx, http.MethodPut, r.itemURL(id), payload, mutationID)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", r.resource, id, err)
	}
	return resp.Body, nil
}

// Delete removes id. Any 2xx answer counts as success whatever its body.
func (r *REST) Delete(ctx context.Context, id collection.ID, mutationID string) error {
	_, err := r.client.Do(ctx, &httpclient.Request{
		Method: http.MethodDelete,
		URL:    r.itemURL(id),
		Header: mutationHeader(mutationID),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", r.resource, id, err)
	}
	return nil
}

// Upload sends payload fields and files as multipart/form-data.
// Strings are sent verbatim; other values are JSON encoded.
func (r *REST) Upload(
	ctx context.Context,
	id collection.ID,
	payload collection.Item,
	files []collection.File,
	mutationID string,
) ([]byte, error) {
	body, contentType, err := EncodeMultipart(payload, files)
	if err != nil {
		return nil, fmt.Errorf("encode %s upload: %w", r.resource, err)
	}

	method, target := http.MethodPost, r.collectionURL()
	if id != "" {
		method, target = http.MethodPut, r.itemURL(id)
	}

	resp, err := r.client.Do(ctx, &httpclient.Request{
		Method:      method,
		URL:         target,
		Body:        bytes.NewReader(body),
		ContentType: contentType,
		Header:      mutationHeader(mutationID),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", r.resource, err)
	}
	return resp.Body, nil
}

func (r *REST) sendJSON(ctx context.Context, method, target string, payload collection.Item, mutationID string) (*httpclient.Response, error) {
	if payload == nil {
		payload = collection.Item{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return r.client.Do(ctx, &httpclient.Request{
		Method:      method,
		URL:         target,
		Body:        bytes.NewReader(data),
		ContentType: "application/json",
		Header:      mutationHeader(mutationID),
	})
}

func mutationHeader(mutationID string) http.Header {
	h := http.Header{}
	if mutationID != "" {
		h.Set(MutationIDHeader, mutationID)
	}
	return h
}

// EncodeMultipart renders payload and files as a multipart body and returns it with its content type.
// Fields are written in key order so the encoding is deterministic.
func EncodeMultipart(payload collection.Item, files []collection.File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value, err := formValue(payload[k])
		if err != nil {
			return nil, "", fmt.Errorf("field %s: %w", k, err)
		}
		if err := w.WriteField(k, value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func formValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

package mockapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/backoffice-console/internal/collection"
)

const maxUploadSize = 32 << 20

type ctxKey struct{}

// reserved list parameters; anything else is an exact-match field filter
var reservedParams = map[string]bool{"page": true, "limit": true, "filter": true, "sort": true, "order": true}

func (s *Server) resourceCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "resource")
		store := s.store(name)
		if store == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown resource %q", name))
			return
		}
		if f, ok := s.takeFault(name); ok {
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, store)))
	})
}

func storeFrom(r *http.Request) *resourceStore {
	return r.Context().Value(ctxKey{}).(*resourceStore)
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := listParams{
		filter: q.Get("filter"),
		sort:   q.Get("sort"),
		desc:   strings.EqualFold(q.Get("order"), "desc"),
		match:  map[string]string{},
	}
	var err error
	if v := q.Get("page"); v != "" {
		if p.page, err = strconv.Atoi(v); err != nil || p.page < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if p.limit, err = strconv.Atoi(v); err != nil || p.limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}
	if p.page > 0 && p.limit == 0 {
		p.limit = collection.DefaultPageSize
	}
	for k := range q {
		if !reservedParams[k] {
			p.match[k] = q.Get(k)
		}
	}

	items, total := storeFrom(r).list(p)
	if s.resources[chi.URLParam(r, "resource")].Bare {
		writeJSON(w, http.StatusOK, items)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "total": total})
}

func (*Server) getItem(w http.ResponseWriter, r *http.Request) {
	rec, err := storeFrom(r).get(collection.NewID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (*Server) createItem(w http.ResponseWriter, r *http.Request) {
	payload, files, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	store := storeFrom(r)

	if csvFile := findCSV(files); csvFile != nil {
		rows, err := readCSV(csvFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(rows) == 0 {
			writeError(w, http.StatusBadRequest, "import file has no rows")
			return
		}
		var last collection.Item
		for _, row := range rows {
			last = store.create(row)
		}
		last["imported"] = len(rows)
		writeJSON(w, http.StatusCreated, last)
		return
	}

	attachFiles(payload, files)
	writeJSON(w, http.StatusCreated, store.create(payload))
}

func (*Server) updateItem(w http.ResponseWriter, r *http.Request) {
	payload, files, err := decodePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attachFiles(payload, files)
	rec, err := storeFrom(r).update(collection.NewID(chi.URLParam(r, "id")), payload)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (*Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := storeFrom(r).delete(collection.NewID(chi.URLParam(r, "id"))); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadedFile struct {
	field  string
	header *multipart.FileHeader
}

func decodePayload(r *http.Request) (collection.Item, []uploadedFile, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r)
	}

	var payload collection.Item
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&payload); err != nil {
		return nil, nil, errors.New("invalid JSON body")
	}
	if payload == nil {
		return nil, nil, errors.New("body must be a JSON object")
	}
	return payload, nil, nil
}

func decodeMultipart(r *http.Request) (collection.Item, []uploadedFile, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart body: %v", err)
	}
	payload := collection.Item{}
	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		payload[key] = formValue(values[0])
	}
	var files []uploadedFile
	for field, headers := range r.MultipartForm.File {
		for _, h := range headers {
			files = append(files, uploadedFile{field: field, header: h})
		}
	}
	return payload, files, nil
}

// formValue decodes JSON-encoded non-string fields and keeps everything else as text
func formValue(v string) any {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" || strings.HasPrefix(trimmed, `"`) {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return v
}

func attachFiles(payload collection.Item, files []uploadedFile) {
	for _, f := range files {
		payload[f.field] = "/uploads/" + f.header.Filename
	}
}

func findCSV(files []uploadedFile) *multipart.FileHeader {
	for _, f := range files {
		ct := f.header.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "text/csv") || strings.HasSuffix(strings.ToLower(f.header.Filename), ".csv") {
			return f.header
		}
	}
	return nil
}

func readCSV(h *multipart.FileHeader) ([]collection.Item, error) {
	f, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV: %v", err)
	}
	if len(records) < 2 {
		return nil, nil
	}
	header := records[0]
	rows := make([]collection.Item, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := collection.Item{}
		for i, col := range header {
			if i < len(rec) && col != collection.IDField {
				row[col] = formValue(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-admin/api"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/objstore"
	"rental-admin/internal/shared/storage"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"http error", NewError(http.StatusForbidden, "nope"), http.StatusForbidden},
		{"validation", &model.ValidationError{Field: "title", Message: "title is required"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound},
		{"duplicate", fmt.Errorf("insert: %w", storage.ErrDuplicate), http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, "test", tt.err)
			assert.Equal(t, tt.status, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
		})
	}

	rec := httptest.NewRecorder()
	FromError(rec, "test", errors.New("db password leaked"))
	assert.NotContains(t, rec.Body.String(), "leaked")
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, "created", map[string]string{"id": "x"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "created", env.Message)
}

func reviewServer(t *testing.T) (http.Handler, *string) {
	t.Helper()
	doc, err := api.LoadSpec()
	require.NoError(t, err)

	var status string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v1/applications/{id}/review", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if err := DecodeJSON(r, &req); err != nil {
			FromError(w, "test", err)
			return
		}
		status = req.Status
		Success(w, http.StatusOK, "ok", nil)
	})
	return WithSchema(doc)(mux), &status
}

func TestDecodeJSONValidatesAgainstSchema(t *testing.T) {
	h, status := reviewServer(t)

	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"valid", `{"status":"approved","reviewNotes":"ok"}`, http.StatusOK, ""},
		{"bad enum", `{"status":"bogus"}`, http.StatusBadRequest, "status"},
		{"missing required", `{}`, http.StatusBadRequest, "status"},
		{"wrong type", `{"status":1}`, http.StatusBadRequest, "status"},
		{"not json", `status=approved`, http.StatusBadRequest, "invalid JSON body"},
		{"empty", ``, http.StatusBadRequest, "request body is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/applications/app-1/review", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.message != "" {
				assert.Contains(t, decodeEnvelope(t, rec).Message, tt.message)
			}
		})
	}
	assert.Equal(t, "approved", *status)
}

func TestDecodeJSONWithoutSchema(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/anything", strings.NewReader(`{"count":"three"}`))
	var v struct {
		Count int `json:"count"`
	}
	err := DecodeJSON(req, &v)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Contains(t, he.Message, "count")
}

func TestSplitPattern(t *testing.T) {
	m, p := splitPattern("PATCH /api/v1/apartments/{id}", "GET")
	assert.Equal(t, "PATCH", m)
	assert.Equal(t, "/api/v1/apartments/{id}", p)

	m, p = splitPattern("example.com/health", "GET")
	assert.Equal(t, "GET", m)
	assert.Equal(t, "/health", p)

	_, p = splitPattern("GET /{$}", "GET")
	assert.Equal(t, "/", p)

	_, p = splitPattern("", "GET")
	assert.Empty(t, p)
}

func TestPageParams(t *testing.T) {
	p, err := PageParams(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, storage.Page{Page: 1, Limit: 10}, p)

	p, err = PageParams(httptest.NewRequest(http.MethodGet, "/x?page=3&limit=500", nil))
	require.NoError(t, err)
	assert.Equal(t, storage.Page{Page: 3, Limit: 100}, p)

	_, err = PageParams(httptest.NewRequest(http.MethodGet, "/x?page=abc", nil))
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}

func TestBindQueryFloat(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?minRent=1200.5", nil)
	var minRent, maxRent *float64
	require.NoError(t, BindQuery(r, "minRent", &minRent))
	require.NoError(t, BindQuery(r, "maxRent", &maxRent))
	require.NotNil(t, minRent)
	assert.Equal(t, 1200.5, *minRent)
	assert.Nil(t, maxRent)
}

func TestSortParams(t *testing.T) {
	s, err := SortParams(httptest.NewRequest(http.MethodGet, "/x", nil), storage.ValidApartmentSort)
	require.NoError(t, err)
	assert.Equal(t, storage.Sort{Field: storage.SortCreatedAt, Desc: true}, s)

	s, err = SortParams(httptest.NewRequest(http.MethodGet, "/x?sortBy=rent.amount&sortOrder=asc", nil), storage.ValidApartmentSort)
	require.NoError(t, err)
	assert.Equal(t, storage.Sort{Field: storage.SortRentAmount}, s)

	_, err = SortParams(httptest.NewRequest(http.MethodGet, "/x?sortBy=password", nil), storage.ValidApartmentSort)
	assert.Error(t, err)
	_, err = SortParams(httptest.NewRequest(http.MethodGet, "/x?sortOrder=up", nil), storage.ValidApartmentSort)
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2030-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2030-05-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, d.Hour())

	_, err = ParseDate("next week")
	assert.Error(t, err)
}

func multipartRequest(t *testing.T, data string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != "" {
		require.NoError(t, mw.WriteField(FormDataField, data))
	}
	for name, contentType := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, name))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		part.Write([]byte("fake-bytes"))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/apartments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDecodeFormAndSaveFiles(t *testing.T) {
	disk, err := objstore.NewDisk(t.TempDir())
	require.NoError(t, err)

	req := multipartRequest(t, `{"title":"Loft"}`, map[string]string{"a.png": "image/png"})
	var v struct {
		Title string `json:"title"`
	}
	form, err := DecodeForm(req, 1<<20, &v)
	require.NoError(t, err)
	assert.Equal(t, "Loft", v.Title)

	urls, err := SaveFiles(req.Context(), disk, "apartments", Files(form, "images"), true)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.True(t, strings.HasPrefix(urls[0], objstore.DiskURLPrefix+"apartments/"))

	req = multipartRequest(t, `{"title":"Loft"}`, map[string]string{"a.pdf": "application/pdf"})
	form, err = DecodeForm(req, 1<<20, &v)
	require.NoError(t, err)
	_, err = SaveFiles(req.Context(), disk, "apartments", Files(form, "images"), true)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Status)

	assert.Nil(t, Files(nil, "images"))
	url, err := SaveFile(req.Context(), disk, "x", nil)
	require.NoError(t, err)
	assert.Empty(t, url)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/entity"
)

type fakeExtractor struct {
	lastReq   entity.ExtractionRequest
	extractFn func(entity.ExtractionRequest) (*entity.Extraction, error)
	records   []*entity.Extraction
	listErr   error
	images    map[string]string
	pingErr   error
}

func (f *fakeExtractor) Extract(_ context.Context, req entity.ExtractionRequest) (*entity.Extraction, error) {
	f.lastReq = req
	return f.extractFn(req)
}

func (f *fakeExtractor) ListBySubmitter(_ context.Context, submitter string) ([]*entity.Extraction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if submitter == "" {
		return nil, common.InvalidInput("user_email is required", nil)
	}
	out := []*entity.Extraction{}
	for _, r := range f.records {
		if r.Submitter() == submitter {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeExtractor) OpenImage(_ context.Context, id, variant string) (io.ReadCloser, error) {
	if variant != "original" && variant != "processed" {
		return nil, common.InvalidInput("Invalid image type. Use 'original' or 'processed'", nil)
	}
	body, ok := f.images[id+"/"+variant]
	if !ok {
		return nil, common.NotFound("Image not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeExtractor) Ping(context.Context) error { return f.pingErr }

type fakeExporter struct {
	rows int
	err  error
	from *time.Time
}

func (f *fakeExporter) ExportXLSX(_ context.Context, _ string, from, _ *time.Time) ([]byte, int, error) {
	f.from = from
	return []byte("PK-xlsx"), f.rows, f.err
}

func newTestServer(ex *fakeExtractor, exp *fakeExporter) http.Handler {
	if exp == nil {
		exp = &fakeExporter{}
	}
	return New(ex, exp, Config{MaxUploadBytes: 1 << 20}, nil).Routes()
}

func multipartBody(t *testing.T, filename string, content []byte, email string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	if email != "" {
		require.NoError(t, mw.WriteField("user_email", email))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestExtractText_OK(t *testing.T) {
	ex := &fakeExtractor{extractFn: func(req entity.ExtractionRequest) (*entity.Extraction, error) {
		return &entity.Extraction{
			ImageID:       "abc",
			OriginalText:  "raw",
			ProcessedText: "proc",
			CleanedText:   "clean",
			Filename:      req.Filename,
		}, nil
	}}
	body, ct := multipartBody(t, "rx.pdf", []byte("%PDF-1.4"), " doc@example.com ")
	req := httptest.NewRequest(http.MethodPost, "/extract-text", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()

	newTestServer(ex, nil).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode(t, rr)
	assert.Equal(t, "raw", out["original_text"])
	assert.Equal(t, "proc", out["processed_text"])
	assert.Equal(t, "clean", out["cleaned_text"])
	assert.Equal(t, "abc", out["image_id"])
	assert.Equal(t, "Use /view-image/abc/original or /view-image/abc/processed to view images", out["message"])

	assert.Equal(t, "rx.pdf", ex.lastReq.Filename)
	assert.Equal(t, []byte("%PDF-1.4"), ex.lastReq.Document)
	require.NotNil(t, ex.lastReq.Submitter)
	assert.Equal(t, "doc@example.com", *ex.lastReq.Submitter)
	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestExtractText_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", common.InvalidInput("unsupported document format", nil), http.StatusBadRequest, common.CodeInvalidInput},
		{"rasterization", common.RasterizationFailure("page rasterization failed", errors.New("pdftoppm")), http.StatusInternalServerError, common.CodeRasterizationFailure},
		{"recognition", common.RecognitionFailure("enhanced recognition pass failed", errors.New("tess")), http.StatusInternalServerError, common.CodeRecognitionFailure},
		{"persistence", common.PersistenceFailure("insert record", errors.New("db")), http.StatusInternalServerError, common.CodePersistenceFailure},
		{"unclassified", errors.New("surprise"), http.StatusInternalServerError, common.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExtractor{extractFn: func(entity.ExtractionRequest) (*entity.Extraction, error) { return nil, tt.err }}
			body, ct := multipartBody(t, "rx.pdf", []byte("x"), "")
			req := httptest.NewRequest(http.MethodPost, "/extract-text", body)
			req.Header.Set("Content-Type", ct)
			rr := httptest.NewRecorder()

			newTestServer(ex, nil).ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			out := decode(t, rr)
			assert.Equal(t, tt.code, out["code"])
			assert.NotContains(t, out["message"], "db", "internal causes stay in the log")
		})
	}
}

func TestExtractText_UploadCap(t *testing.T) {
	var got int
	ex := &fakeExtractor{extractFn: func(req entity.ExtractionRequest) (*entity.Extraction, error) {
		got = len(req.Document)
		return &entity.Extraction{ImageID: "id"}, nil
	}}
	doc := bytes.Repeat([]byte("x"), 3<<20)

	post := func(maxBytes int64) int {
		body, ct := multipartBody(t, "rx.pdf", doc, "")
		req := httptest.NewRequest(http.MethodPost, "/extract-text", body)
		req.Header.Set("Content-Type", ct)
		rr := httptest.NewRecorder()
		New(ex, &fakeExporter{}, Config{MaxUploadBytes: maxBytes}, nil).Routes().ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusRequestEntityTooLarge, post(1<<20))

	assert.Equal(t, http.StatusOK, post(0), "zero disables the cap")
	assert.Equal(t, len(doc), got)
}

func TestExtractText_MissingFile(t *testing.T) {
	ex := &fakeExtractor{}
	body, ct := multipartBody(t, "", nil, "doc@example.com")
	req := httptest.NewRequest(http.MethodPost, "/extract-text", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()

	newTestServer(ex, nil).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/extract-text", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	newTestServer(ex, nil).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUserPrescriptions(t *testing.T) {
	email := "doc@example.com"
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ex := &fakeExtractor{records: []*entity.Extraction{
		{ImageID: "b", UserEmail: &email, CleanedText: "two", Filename: "b.pdf", Timestamp: ts},
		{ImageID: "a", UserEmail: &email, CleanedText: "one", Filename: "a.pdf", Timestamp: ts.Add(-time.Hour)},
	}}
	h := newTestServer(ex, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions?user_email=doc@example.com", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Count         int                 `json:"count"`
		Prescriptions []entity.Extraction `json:"prescriptions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "b", out.Prescriptions[0].ImageID)
	assert.Equal(t, ts, out.Prescriptions[0].Timestamp)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions?user_email=other@example.com", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No prescriptions found for this user", decode(t, rr)["message"])

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUserPrescriptions_StoreErrorIsNot404(t *testing.T) {
	ex := &fakeExtractor{listErr: common.PersistenceFailure("query records", errors.New("conn refused"))}
	rr := httptest.NewRecorder()
	newTestServer(ex, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions?user_email=doc@example.com", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestExportPrescriptions(t *testing.T) {
	exp := &fakeExporter{rows: 2}
	h := newTestServer(&fakeExtractor{}, exp)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions/export?user_email=doc@example.com&from=2024-01-01", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "prescriptions_")
	assert.Equal(t, "PK-xlsx", rr.Body.String())
	require.NotNil(t, exp.from)
	assert.Equal(t, 2024, exp.from.Year())

	exp.rows = 0
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions/export?user_email=doc@example.com", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for _, q := range []string{
		"user_email=bad",
		"user_email=doc@example.com&from=01-01-2024",
		"user_email=doc@example.com&from=2024-02-01&to=2024-01-01",
	} {
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user-prescriptions/export?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestViewImage(t *testing.T) {
	ex := &fakeExtractor{images: map[string]string{"abc/processed": "\x89PNG"}}
	h := newTestServer(ex, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/view-image/abc/processed", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/view-image/abc/thumbnail", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/view-image/nope/original", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthAndCORS(t *testing.T) {
	ex := &fakeExtractor{}
	h := newTestServer(ex, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	ex.pingErr = errors.New("down")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/extract-text", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

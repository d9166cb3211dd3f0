package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/rxscan/constants"
	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/enhance"
	"github.com/joseph-ayodele/rxscan/internal/entity"
	"github.com/joseph-ayodele/rxscan/internal/imagestore"
	"github.com/joseph-ayodele/rxscan/internal/ocr"
	"github.com/joseph-ayodele/rxscan/internal/registry"
)

type fakeLoader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeLoader) FirstPage(_ context.Context, path string) (image.Image, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewGray(image.Rect(0, 0, 24, 24))
	for i := range img.Pix {
		img.Pix[i] = 230
	}
	img.SetGray(12, 12, color.Gray{Y: 10})
	return img, nil
}

func (f *fakeLoader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

type fakeRecognizer struct {
	mu       sync.Mutex
	profiles []string
	fail     map[string]error
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ image.Image, p ocr.Profile) (string, error) {
	f.mu.Lock()
	f.profiles = append(f.profiles, p.Name)
	f.mu.Unlock()
	if err := f.fail[p.Name]; err != nil {
		return "", err
	}
	if p.Name == ocr.SpacingProfile.Name {
		return "Rp  250mg\n\n\n  int daily\n\n", nil
	}
	return "Rp 250mg int daily", nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, failPut: map[string]error{}}
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Location(key string) (string, error) { return "mem://" + key, nil }

func (m *memStore) Put(_ context.Context, key string, _ image.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPut[key]; err != nil {
		return "", err
	}
	loc := "mem://" + key
	m.objects[loc] = []byte("png:" + key)
	return loc, nil
}

func (m *memStore) Open(_ context.Context, loc string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[loc]
	if !ok {
		return nil, imagestore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(_ context.Context, loc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, loc)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type memRepo struct {
	mu        sync.Mutex
	records   []*entity.Extraction
	insertErr error
	listErr   error
}

func (r *memRepo) Insert(_ context.Context, e *entity.Extraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.records = append(r.records, e)
	return nil
}

func (r *memRepo) ListBySubmitter(_ context.Context, submitter string) ([]*entity.Extraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*entity.Extraction
	for _, e := range r.records {
		if e.Submitter() == submitter {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type harness struct {
	svc     *Service
	loader  *fakeLoader
	rec     *fakeRecognizer
	store   *memStore
	reg     *registry.MemoryRegistry
	repo    *memRepo
	scratch string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		loader:  &fakeLoader{},
		rec:     &fakeRecognizer{fail: map[string]error{}},
		store:   newMemStore(),
		reg:     registry.NewMemoryRegistry(),
		repo:    &memRepo{},
		scratch: t.TempDir(),
	}
	opts = append([]Option{WithScratchDir(h.scratch), WithMaxUploadBytes(1 << 20)}, opts...)
	h.svc = NewService(Deps{
		Loader:     h.loader,
		Recognizer: h.rec,
		Enhancer:   enhance.New(enhance.DefaultOptions(), nil),
		Images:     h.store,
		Registry:   h.reg,
		Repo:       h.repo,
	}, nil, opts...)
	return h
}

func strPtr(s string) *string { return &s }

func pdfRequest(submitter *string) entity.ExtractionRequest {
	return entity.ExtractionRequest{
		Document:  []byte("%PDF-1.4 fake"),
		Submitter: submitter,
		Filename:  "script.pdf",
	}
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "per-request scratch dirs must be removed")
}

func TestExtract_Success(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("WAT", 3600))
	h := newHarness(t, WithClock(func() time.Time { return fixed }))

	rec, err := h.svc.Extract(context.Background(), pdfRequest(strPtr("doc@example.com")))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ImageID)
	assert.Equal(t, "Rp 250mg int daily", rec.OriginalText)
	assert.Equal(t, "Rp  250mg\n\n\n  int daily\n\n", rec.ProcessedText)
	assert.Equal(t, "Prescription 250mg\n\ninit daily", rec.CleanedText)
	assert.Equal(t, "script.pdf", rec.Filename)
	assert.Equal(t, "doc@example.com", rec.Submitter())
	assert.Equal(t, fixed.UTC(), rec.Timestamp)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())

	assert.Equal(t, []string{ocr.GeneralProfile.Name, ocr.SpacingProfile.Name}, h.rec.profiles)
	require.Len(t, h.loader.paths, 1)
	assert.Equal(t, ".pdf", filepath.Ext(h.loader.paths[0]))

	assert.Equal(t, 1, h.repo.len())
	assert.Equal(t, 2, h.store.len())
	for _, v := range []string{"original", "processed"} {
		rc, err := h.svc.OpenImage(context.Background(), rec.ImageID, v)
		require.NoError(t, err, v)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		assert.Equal(t, "png:"+imagestore.Key(rec.ImageID, v), string(b))
	}
	assertScratchEmpty(t, h.scratch)
}

func TestExtract_AnonymousSubmitter(t *testing.T) {
	h := newHarness(t)
	for _, sub := range []*string{nil, strPtr(""), strPtr("   ")} {
		rec, err := h.svc.Extract(context.Background(), pdfRequest(sub))
		require.NoError(t, err)
		assert.Nil(t, rec.UserEmail)
	}
}

func TestExtract_UniqueIDsSequential(t *testing.T) {
	h := newHarness(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		rec, err := h.svc.Extract(context.Background(), pdfRequest(nil))
		require.NoError(t, err)
		assert.False(t, seen[rec.ImageID], "duplicate id %s", rec.ImageID)
		seen[rec.ImageID] = true
	}
	assert.Equal(t, 20, h.repo.len())
}

func TestExtract_UniqueIDsConcurrent(t *testing.T) {
	h := newHarness(t)
	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := h.svc.Extract(context.Background(), pdfRequest(strPtr(fmt.Sprintf("u%d@example.com", i))))
			errs[i] = err
			if rec != nil {
				ids[i] = rec.ImageID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]])
		seen[ids[i]] = true
	}
	assert.Equal(t, n, h.repo.len())
	assert.Equal(t, 2*n, h.store.len())
	assertScratchEmpty(t, h.scratch)
}

func TestExtract_SecondPassFailurePersistsNothing(t *testing.T) {
	h := newHarness(t, WithIDGenerator(func() string { return "fixed-id" }))
	h.rec.fail[ocr.SpacingProfile.Name] = errors.New("engine crashed")

	rec, err := h.svc.Extract(context.Background(), pdfRequest(strPtr("doc@example.com")))
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, common.HasCode(err, common.CodeRecognitionFailure))

	assert.Zero(t, h.repo.len())
	assert.Zero(t, h.store.len())
	_, err = h.reg.Lookup(context.Background(), "fixed-id", constants.VariantOriginal)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assertScratchEmpty(t, h.scratch)
}

func TestExtract_FirstPassFailure(t *testing.T) {
	h := newHarness(t)
	h.rec.fail[ocr.GeneralProfile.Name] = errors.New("no tessdata")

	_, err := h.svc.Extract(context.Background(), pdfRequest(nil))
	assert.True(t, common.HasCode(err, common.CodeRecognitionFailure))
	assert.Equal(t, []string{ocr.GeneralProfile.Name}, h.rec.profiles)
	assert.Zero(t, h.store.len())
}

func TestExtract_InsertFailureRollsBack(t *testing.T) {
	h := newHarness(t, WithIDGenerator(func() string { return "rb-id" }))
	h.repo.insertErr = errors.New("connection reset")

	_, err := h.svc.Extract(context.Background(), pdfRequest(nil))
	assert.True(t, common.HasCode(err, common.CodePersistenceFailure))

	assert.Zero(t, h.store.len(), "stored images must be removed")
	_, err = h.reg.Lookup(context.Background(), "rb-id", constants.VariantProcessed)
	assert.ErrorIs(t, err, registry.ErrNotFound, "registry entry must be removed")
}

func TestExtract_ProcessedPutFailureRollsBackOriginal(t *testing.T) {
	h := newHarness(t, WithIDGenerator(func() string { return "put-id" }))
	h.store.failPut[imagestore.Key("put-id", "processed")] = errors.New("disk full")

	_, err := h.svc.Extract(context.Background(), pdfRequest(nil))
	assert.True(t, common.HasCode(err, common.CodePersistenceFailure))
	assert.Zero(t, h.store.len())
	assert.Zero(t, h.repo.len())
}

func TestExtract_DuplicateIDRejected(t *testing.T) {
	h := newHarness(t, WithIDGenerator(func() string { return "same" }))

	_, err := h.svc.Extract(context.Background(), pdfRequest(nil))
	require.NoError(t, err)

	h.store.failPut[imagestore.Key("same", "original")] = errors.New("must not overwrite")
	_, err = h.svc.Extract(context.Background(), pdfRequest(nil))
	assert.True(t, common.HasCode(err, common.CodePersistenceFailure))
	assert.ErrorIs(t, err, registry.ErrDuplicate)
	assert.Equal(t, 1, h.repo.len())

	// the first extraction keeps its images
	assert.Equal(t, 2, h.store.len())
	for _, v := range []string{"original", "processed"} {
		rc, err := h.svc.OpenImage(context.Background(), "same", v)
		require.NoError(t, err, v)
		_ = rc.Close()
	}
}

func TestExtract_CanceledContextLeavesNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.repo.insertErr = context.Canceled

	_, err := h.svc.Extract(ctx, pdfRequest(nil))
	require.Error(t, err)
	assert.Zero(t, h.store.len())
	assert.Zero(t, h.repo.len())
	assertScratchEmpty(t, h.scratch)
}

func TestExtract_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		req  entity.ExtractionRequest
	}{
		{"missing filename", entity.ExtractionRequest{Document: []byte("x")}},
		{"unsupported extension", entity.ExtractionRequest{Document: []byte("x"), Filename: "notes.docx"}},
		{"no extension", entity.ExtractionRequest{Document: []byte("x"), Filename: "scan"}},
		{"filename too long", entity.ExtractionRequest{Document: []byte("x"), Filename: string(bytes.Repeat([]byte("a"), 256)) + ".pdf"}},
		{"bad email", entity.ExtractionRequest{Document: []byte("x"), Filename: "a.pdf", Submitter: strPtr("not-an-email")}},
		{"empty document", entity.ExtractionRequest{Filename: "a.pdf"}},
		{"document too large", entity.ExtractionRequest{Document: make([]byte, 1<<20+1), Filename: "a.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Extract(context.Background(), tt.req)
			assert.True(t, common.HasCode(err, common.CodeInvalidInput), "got %v", err)
			assert.Zero(t, h.loader.calls())
		})
	}
}

func TestExtract_LoaderErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("wrap: %w", ocr.ErrUnsupportedFormat), common.CodeInvalidInput},
		{ocr.ErrNoPages, common.CodeInvalidInput},
		{fmt.Errorf("png: %w", ocr.ErrUndecodable), common.CodeInvalidInput},
		{errors.New("pdftoppm: exit status 99"), common.CodeRasterizationFailure},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.loader.err = tt.err
		_, err := h.svc.Extract(context.Background(), pdfRequest(nil))
		assert.Equal(t, tt.code, common.CodeOf(err), tt.err.Error())
		assert.Empty(t, h.rec.profiles)
		assertScratchEmpty(t, h.scratch)
	}
}

func TestExtractFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "Upload.PNG")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o600))

	rec, err := h.svc.ExtractFile(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Upload.PNG", rec.Filename)
	assert.Equal(t, ".png", filepath.Ext(h.loader.paths[0]))

	_, err = h.svc.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), nil)
	assert.True(t, common.HasCode(err, common.CodeInvalidInput))
}

func TestListBySubmitter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.svc.ListBySubmitter(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	for i := 0; i < 3; i++ {
		_, err := h.svc.Extract(ctx, pdfRequest(strPtr("doc@example.com")))
		require.NoError(t, err)
	}
	got, err = h.svc.ListBySubmitter(ctx, " doc@example.com ")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = h.svc.ListBySubmitter(ctx, "")
	assert.True(t, common.HasCode(err, common.CodeInvalidInput))
	_, err = h.svc.ListBySubmitter(ctx, "   ")
	assert.True(t, common.HasCode(err, common.CodeInvalidInput))

	// rows written with a non-email submitter stay queryable
	h.repo.records = append(h.repo.records, &entity.Extraction{ImageID: "legacy", UserEmail: strPtr("clinic-7"), Timestamp: time.Now()})
	got, err = h.svc.ListBySubmitter(ctx, "clinic-7")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "legacy", got[0].ImageID)

	h.repo.listErr = errors.New("db down")
	_, err = h.svc.ListBySubmitter(ctx, "doc@example.com")
	assert.True(t, common.HasCode(err, common.CodePersistenceFailure))
}

func TestOpenImage_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.OpenImage(ctx, "whatever", "thumbnail")
	assert.True(t, common.HasCode(err, common.CodeInvalidInput))

	_, err = h.svc.OpenImage(ctx, "unknown", "original")
	assert.True(t, common.HasCode(err, common.CodeNotFound))

	require.NoError(t, h.reg.Register(ctx, "dangling", registry.Entry{Original: "mem://gone", Processed: "mem://gone2"}))
	_, err = h.svc.OpenImage(ctx, "dangling", "processed")
	assert.True(t, common.HasCode(err, common.CodeNotFound))
}

// Package extract runs one uploaded document through the extraction pipeline:
// rasterize, recognize raw, enhance, recognize enhanced, normalize, persist.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/rxscan/constants"
	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/entity"
	"github.com/joseph-ayodele/rxscan/internal/imagestore"
	"github.com/joseph-ayodele/rxscan/internal/ocr"
	"github.com/joseph-ayodele/rxscan/internal/registry"
	"github.com/joseph-ayodele/rxscan/internal/repository"
)

const (
	maxFilenameLength = 255
	rollbackTimeout   = 15 * time.Second
)

// Service coordinates the pipeline stages and owns the image registry.
type Service struct {
	loader     PageLoader
	recognizer Recognizer
	enhancer   PageEnhancer
	images     imagestore.Store
	registry   registry.Registry
	repo       repository.ExtractionRepository
	logger     *slog.Logger

	scratchDir     string
	maxUploadBytes int64
	newID          func() string
	now            func() time.Time
}

// Deps are the collaborators every Service needs.
type Deps struct {
	Loader     PageLoader
	Recognizer Recognizer
	Enhancer   PageEnhancer
	Images     imagestore.Store
	Registry   registry.Registry
	Repo       repository.ExtractionRepository
}

type Option func(*Service)

// WithScratchDir sets the parent of the per-request temp directories.
func WithScratchDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.scratchDir = dir
		}
	}
}

// WithMaxUploadBytes caps the document size; zero or less disables the cap.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) { s.maxUploadBytes = n }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(deps Deps, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		loader:     deps.Loader,
		recognizer: deps.Recognizer,
		enhancer:   deps.Enhancer,
		images:     deps.Images,
		registry:   deps.Registry,
		repo:       deps.Repo,
		logger:     logger,
		scratchDir: os.TempDir(),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Extract runs the full pipeline for one request. On success the returned
// record has been persisted and both images are retrievable by its ImageID.
// On failure nothing is left behind in the image store, registry or repository.
func (s *Service) Extract(ctx context.Context, req entity.ExtractionRequest) (*entity.Extraction, error) {
	start := time.Now()
	logger := common.LoggerFromContext(ctx, s.logger).With("filename", req.Filename)

	req.Submitter = normalizeSubmitter(req.Submitter)
	if err := s.validate(req); err != nil {
		logger.Warn("extract.validate.failed", "error", err)
		return nil, err
	}

	scratch, err := os.MkdirTemp(s.scratchDir, "rx-req-*")
	if err != nil {
		return nil, common.NewAppError(common.CodeInternal, "create scratch dir", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("failed to remove scratch dir", "dir", scratch, "error", err)
		}
	}()

	docPath := filepath.Join(scratch, "document"+strings.ToLower(filepath.Ext(req.Filename)))
	if err := os.WriteFile(docPath, req.Document, 0o600); err != nil {
		return nil, common.NewAppError(common.CodeInternal, "write upload to scratch", err)
	}

	page, err := s.loader.FirstPage(ctx, docPath)
	if err != nil {
		logger.Error("extract.rasterize.failed", "error", err)
		return nil, classifyLoadError(err)
	}

	id := s.newID()
	logger = logger.With("image_id", id)
	logger.Info("starting extraction", "width", page.Bounds().Dx(), "height", page.Bounds().Dy())

	originalText, err := s.recognizer.Recognize(ctx, page, ocr.GeneralProfile)
	if err != nil {
		logger.Error("extract.recognize.failed", "pass", ocr.GeneralProfile.Name, "error", err)
		return nil, common.RecognitionFailure("raw recognition pass failed", err)
	}

	enhanced := s.enhancer.Enhance(page)
	if err := ctx.Err(); err != nil {
		return nil, common.RecognitionFailure("canceled after enhancement", err)
	}

	processedText, err := s.recognizer.Recognize(ctx, enhanced, ocr.SpacingProfile)
	if err != nil {
		logger.Error("extract.recognize.failed", "pass", ocr.SpacingProfile.Name, "error", err)
		return nil, common.RecognitionFailure("enhanced recognition pass failed", err)
	}

	rec := &entity.Extraction{
		ImageID:       id,
		UserEmail:     req.Submitter,
		OriginalText:  originalText,
		ProcessedText: processedText,
		CleanedText:   ocr.Normalize(processedText),
		Filename:      req.Filename,
		Timestamp:     s.now().UTC(),
	}
	if err := entity.ValidateExtraction(rec); err != nil {
		logger.Error("extract.schema.failed", "error", err)
		return nil, common.PersistenceFailure("record rejected by schema", err)
	}

	if err := s.persist(ctx, logger, rec, page, enhanced); err != nil {
		return nil, err
	}

	logger.Info("extraction complete",
		"original_chars", len(rec.OriginalText),
		"cleaned_chars", len(rec.CleanedText),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// ExtractFile reads path and runs it through Extract.
func (s *Service) ExtractFile(ctx context.Context, path string, submitter *string) (*entity.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.InvalidInput(fmt.Sprintf("file %s does not exist", path), err)
		}
		return nil, common.NewAppError(common.CodeInternal, "read file", err)
	}
	return s.Extract(ctx, entity.ExtractionRequest{
		Document:  data,
		Submitter: submitter,
		Filename:  filepath.Base(path),
	})
}

// persist registers the id, stores both images and inserts the record. Anything
// written before a failing step is rolled back.
func (s *Service) persist(ctx context.Context, logger *slog.Logger, rec *entity.Extraction, original image.Image, processed *image.Gray) (err error) {
	var (
		written    []string
		registered bool
	)
	defer func() {
		if err == nil {
			return
		}
		s.rollback(ctx, logger, rec.ImageID, written, registered)
	}()

	originalKey := imagestore.Key(rec.ImageID, string(constants.VariantOriginal))
	processedKey := imagestore.Key(rec.ImageID, string(constants.VariantProcessed))
	originalLoc, err := s.images.Location(originalKey)
	if err != nil {
		return common.PersistenceFailure("locate original image", err)
	}
	processedLoc, err := s.images.Location(processedKey)
	if err != nil {
		return common.PersistenceFailure("locate processed image", err)
	}

	// A duplicate id must fail before any image is written.
	if err = s.registry.Register(ctx, rec.ImageID, registry.Entry{Original: originalLoc, Processed: processedLoc}); err != nil {
		logger.Error("extract.register.failed", "error", err)
		return common.PersistenceFailure("register images", err)
	}
	registered = true

	if _, err = s.images.Put(ctx, originalKey, original); err != nil {
		logger.Error("extract.store.failed", "variant", constants.VariantOriginal, "error", err)
		return common.PersistenceFailure("store original image", err)
	}
	written = append(written, originalLoc)

	if _, err = s.images.Put(ctx, processedKey, processed); err != nil {
		logger.Error("extract.store.failed", "variant", constants.VariantProcessed, "error", err)
		return common.PersistenceFailure("store processed image", err)
	}
	written = append(written, processedLoc)

	if err = s.repo.Insert(ctx, rec); err != nil {
		logger.Error("extract.insert.failed", "error", err)
		return common.PersistenceFailure("insert record", err)
	}
	return nil
}

// rollback runs on a context detached from the request so a canceled request
// still cleans up.
func (s *Service) rollback(ctx context.Context, logger *slog.Logger, id string, written []string, registered bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if registered {
		if err := s.registry.Remove(ctx, id); err != nil {
			logger.Error("extract.rollback.registry_failed", "error", err)
		}
	}
	for _, loc := range written {
		if err := s.images.Delete(ctx, loc); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
			logger.Error("extract.rollback.image_failed", "location", loc, "error", err)
		}
	}
	logger.Warn("extraction rolled back", "images_removed", len(written), "registry_removed", registered)
}

// ListBySubmitter returns the submitter's records newest first. No records is
// an empty slice and a nil error. Any non-blank submitter string can be
// queried; only new uploads must carry an email address.
func (s *Service) ListBySubmitter(ctx context.Context, submitter string) ([]*entity.Extraction, error) {
	submitter = strings.TrimSpace(submitter)
	v := common.NewValidator().Field("user_email", submitter, common.Required)
	if err := v.Err(); err != nil {
		return nil, err
	}
	recs, err := s.repo.ListBySubmitter(ctx, submitter)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Error("extract.query.failed", "error", err)
		return nil, common.PersistenceFailure("query records", err)
	}
	if recs == nil {
		recs = []*entity.Extraction{}
	}
	return recs, nil
}

// OpenImage resolves (id, variant) through the registry and opens the stored PNG.
func (s *Service) OpenImage(ctx context.Context, id, variant string) (io.ReadCloser, error) {
	v, ok := constants.ParseVariant(variant)
	if !ok {
		return nil, common.InvalidInput("Invalid image type. Use 'original' or 'processed'", nil)
	}
	loc, err := s.registry.Lookup(ctx, id, v)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, common.NotFound("Image not found")
		}
		return nil, common.PersistenceFailure("registry lookup", err)
	}
	rc, err := s.images.Open(ctx, loc)
	if err != nil {
		if errors.Is(err, imagestore.ErrNotFound) {
			return nil, common.NotFound("Image not found")
		}
		return nil, common.PersistenceFailure("open image", err)
	}
	return rc, nil
}

// Ping checks the persistence store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) validate(req entity.ExtractionRequest) error {
	return common.NewValidator().
		Field("filename", req.Filename, common.Required, common.MaxLength(maxFilenameLength), common.SupportedDocument).
		Field("user_email", req.Submitter, common.Email).
		Field("document", req.Document, common.Required, common.MaxBytes(s.maxUploadBytes)).
		Err()
}

func normalizeSubmitter(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func classifyLoadError(err error) error {
	switch {
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return common.InvalidInput("unsupported document format", err)
	case errors.Is(err, ocr.ErrNoPages):
		return common.InvalidInput("document has no pages", err)
	case errors.Is(err, ocr.ErrUndecodable):
		return common.InvalidInput("document could not be decoded", err)
	default:
		return common.RasterizationFailure("page rasterization failed", err)
	}
}

// Package app builds the extraction service and its collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/enhance"
	"github.com/joseph-ayodele/rxscan/internal/export"
	"github.com/joseph-ayodele/rxscan/internal/extract"
	"github.com/joseph-ayodele/rxscan/internal/imagestore"
	"github.com/joseph-ayodele/rxscan/internal/ocr"
	"github.com/joseph-ayodele/rxscan/internal/registry"
	"github.com/joseph-ayodele/rxscan/internal/repository"
)

// App holds the wired services. Close releases every backend connection.
type App struct {
	Extract *extract.Service
	Export  *export.Service

	closers []func()
	logger  *slog.Logger
}

// Build connects every backend named in cfg and wires the pipeline.
// On error anything already opened is closed.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	repo, closeRepo, err := OpenRepository(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	images, err := NewImageStore(ctx, cfg.Images, logger)
	if err != nil {
		return nil, err
	}

	reg, closeReg, err := NewRegistry(ctx, cfg.Registry, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeReg)

	recognizer, err := NewRecognizer(cfg.OCR, logger)
	if err != nil {
		return nil, err
	}

	a.Extract = extract.NewService(extract.Deps{
		Loader:     NewLoader(cfg.OCR, logger),
		Recognizer: recognizer,
		Enhancer:   enhance.New(enhance.DefaultOptions(), logger),
		Images:     images,
		Registry:   reg,
		Repo:       repo,
	}, logger,
		extract.WithScratchDir(cfg.OCR.ScratchDir),
		extract.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	a.Export = export.NewService(a.Extract, logger)

	logger.Info("application wired",
		"db_backend", cfg.Database.Backend,
		"image_store", images.Name(),
		"registry", cfg.Registry.Backend,
		"rasterizer", cfg.OCR.Rasterizer,
		"ocr_engine", cfg.OCR.Engine,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func ocrConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Pdftoppm:      c.Pdftoppm,
		Tesseract:     c.Tesseract,
		TesseractLang: c.Language,
		DPI:           c.DPI,
		TessdataDir:   c.TessdataDir,
		HeicConverter: c.HeicConverter,
	}
}

// NewLoader picks the PDF rasterizer named by RASTERIZER.
func NewLoader(c common.OCRConfig, logger *slog.Logger) *ocr.Loader {
	oc := ocrConfig(c)
	runner := ocr.ExecRunner()
	var pdf ocr.Rasterizer
	switch c.Rasterizer {
	case "fitz":
		pdf = ocr.NewFitzRasterizer(oc, logger)
	default:
		pdf = ocr.NewPopplerRasterizer(oc, runner, logger)
	}
	return ocr.NewLoader(oc, pdf, runner, logger)
}

// NewRecognizer picks the OCR engine named by OCR_ENGINE.
func NewRecognizer(c common.OCRConfig, logger *slog.Logger) (ocr.Recognizer, error) {
	oc := ocrConfig(c)
	switch c.Engine {
	case "gosseract":
		g, err := ocr.NewGosseract(oc, logger)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, "gosseract engine unavailable", err)
		}
		return g, nil
	case "", "cli":
		return ocr.NewTesseractCLI(oc, ocr.ExecRunner(), logger), nil
	}
	return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown OCR_ENGINE %q", c.Engine), common.ErrInvalidInput)
}

// NewImageStore opens the store named by IMAGE_STORE.
func NewImageStore(ctx context.Context, c common.ImagesConfig, logger *slog.Logger) (imagestore.Store, error) {
	switch c.Backend {
	case "s3":
		s, err := imagestore.NewS3Store(ctx, imagestore.S3Config{
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			UseSSL:    c.S3UseSSL,
		}, logger)
		if err != nil {
			return nil, common.WrapError(err, "open s3 image store")
		}
		return s, nil
	case "", "local":
		s, err := imagestore.NewLocalStore(c.LocalDir, logger)
		if err != nil {
			return nil, common.WrapError(err, "open local image store")
		}
		return s, nil
	}
	return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown IMAGE_STORE %q", c.Backend), common.ErrInvalidInput)
}

// NewRegistry opens the registry named by REGISTRY_BACKEND.
func NewRegistry(ctx context.Context, c common.RegistryConfig, logger *slog.Logger) (registry.Registry, func(), error) {
	switch c.Backend {
	case "redis":
		r, err := registry.NewRedisRegistry(ctx, registry.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Prefix:   c.RedisPrefix,
			TTL:      c.TTL,
		}, logger)
		if err != nil {
			return nil, nil, common.WrapError(err, "open redis registry")
		}
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Warn("failed to close redis registry", "error", err)
			}
		}, nil
	case "", "memory":
		return registry.NewMemoryRegistry(), func() {}, nil
	}
	return nil, nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown REGISTRY_BACKEND %q", c.Backend), common.ErrInvalidInput)
}

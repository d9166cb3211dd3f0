package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
)

// Variable is one engine tunable passed as `-c name=value`.
type Variable struct {
	Name  string
	Value string
}

// Profile is the engine configuration for one recognition pass.
type Profile struct {
	Name        string
	PageSegMode int // 6 = single uniform block of text
	EngineMode  int // 3 = default, based on what is available
	Variables   []Variable
}

var (
	// GeneralProfile is used for the raw page.
	GeneralProfile = Profile{Name: "general", PageSegMode: 6, EngineMode: 3}

	// SpacingProfile is used for the enhanced page; it keeps runs of spaces between words.
	SpacingProfile = Profile{
		Name:        "spacing",
		PageSegMode: 6,
		EngineMode:  3,
		Variables:   []Variable{{Name: "preserve_interword_spaces", Value: "1"}},
	}
)

// Recognizer returns the engine's text for a bitmap, verbatim.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, profile Profile) (string, error)
}

// TesseractCLI runs the tesseract binary on a scoped temp PNG.
type TesseractCLI struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractCLI(cfg Config, runner Runner, logger *slog.Logger) *TesseractCLI {
	if runner == nil {
		runner = ExecRunner()
	}
	return &TesseractCLI{cfg: cfg.withDefaults(), runner: runner, logger: loggerOrDefault(logger)}
}

func (t *TesseractCLI) Recognize(ctx context.Context, img image.Image, profile Profile) (string, error) {
	start := time.Now()
	in, err := writeTempPNG(img)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(in); err != nil {
			t.logger.Warn("failed to remove temp png", "file", in, "error", err)
		}
	}()

	// tesseract <file> stdout -l <lang> --psm N --oem N [-c k=v]...
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.logger, t.args(in, profile)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("tesseract (%s): %w: %s", profile.Name, err, truncate(string(errb), 512))
	}
	t.logger.Debug("ocr pass done", "profile", profile.Name,
		"duration_ms", time.Since(start).Milliseconds(), "chars", len(out))
	return string(out), nil
}

func (t *TesseractCLI) args(in string, profile Profile) []string {
	args := []string{in, "stdout", "-l", t.cfg.TesseractLang,
		"--psm", strconv.Itoa(profile.PageSegMode),
		"--oem", strconv.Itoa(profile.EngineMode),
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	for _, v := range profile.Variables {
		args = append(args, "-c", v.Name+"="+v.Value)
	}
	return args
}

func writeTempPNG(img image.Image) (string, error) {
	f, err := os.CreateTemp("", "rx-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp png: %w", err)
	}
	name := f.Name()
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("encode temp png: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp png: %w", err)
	}
	return name, nil
}

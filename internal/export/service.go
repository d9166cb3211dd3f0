package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/rxscan/internal/entity"
)

// excel rejects cell text longer than this.
const maxCellChars = 32767

// Lister is the query side of the extraction service.
type Lister interface {
	ListBySubmitter(ctx context.Context, submitter string) ([]*entity.Extraction, error)
}

// Service is a tiny façade over the extraction history that produces XLSX bytes for exports.
type Service struct {
	lister Lister
	logger *slog.Logger
}

func NewService(lister Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{lister: lister, logger: logger}
}

// ExportXLSX returns an XLSX workbook (as bytes) of the submitter's extractions and the row count.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> every extraction for the submitter.
func (s *Service) ExportXLSX(ctx context.Context, submitter string, from, to *time.Time) ([]byte, int, error) {
	start := time.Now()

	recs, err := s.lister.ListBySubmitter(ctx, submitter)
	if err != nil {
		return nil, 0, err
	}
	recs = filterWindow(recs, from, to)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Prescriptions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, 0, fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{
		"Timestamp (UTC)",
		"Filename",
		"Image ID",
		"Cleaned Text",
		"Original Text",
		"Processed Text",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	wrap, _ := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})

	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		write(2, r.Filename)
		write(3, r.ImageID)
		write(4, truncate(r.CleanedText, maxCellChars))
		write(5, truncate(r.OriginalText, maxCellChars))
		write(6, truncate(r.ProcessedText, maxCellChars))
	}
	if len(recs) > 0 && wrap != 0 {
		last, _ := excelize.CoordinatesToCellName(len(headers), len(recs)+1)
		_ = f.SetCellStyle(sheet, "D2", last, wrap)
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // timestamp
	_ = f.SetColWidth(sheet, "B", "B", 28) // filename
	_ = f.SetColWidth(sheet, "C", "C", 38) // image id
	_ = f.SetColWidth(sheet, "D", "F", 60) // texts

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_email", submitter,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), len(recs), nil
}

// filterWindow keeps records whose UTC date falls within [from, to], both date-only.
func filterWindow(recs []*entity.Extraction, from, to *time.Time) []*entity.Extraction {
	if from == nil && to == nil {
		return recs
	}
	var lo, hi time.Time
	if from != nil {
		lo = dateOnly(*from)
	}
	if to != nil {
		hi = dateOnly(*to).AddDate(0, 0, 1)
	} else {
		hi = dateOnly(time.Now()).AddDate(0, 0, 1)
	}
	out := make([]*entity.Extraction, 0, len(recs))
	for _, r := range recs {
		ts := r.Timestamp.UTC()
		if ts.Before(lo) || !ts.Before(hi) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if n <= 0 || len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

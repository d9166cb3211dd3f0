package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/rxscan/internal/entity"
)

const (
	TablePrescriptions = "prescriptions"

	colID            = "id"
	colUserEmail     = "user_email"
	colOriginalText  = "original_text"
	colProcessedText = "processed_text"
	colCleanedText   = "cleaned_text"
	colImageID       = "image_id"
	colMessage       = "message"
	colTimestamp     = "timestamp"
	colFilename      = "filename"

	// StoredMessage fills the message column of every row.
	StoredMessage = "Text extraction completed"
)

// ExtractionRepository persists extraction records. ListBySubmitter returns
// newest first and an empty, non-nil slice when nothing matches.
type ExtractionRepository interface {
	Insert(ctx context.Context, e *entity.Extraction) error
	ListBySubmitter(ctx context.Context, submitter string) ([]*entity.Extraction, error)
	Ping(ctx context.Context) error
}

type sqlExtractionRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

// NewSQLExtractionRepository works over any Ent SQL driver (postgres or sqlite).
func NewSQLExtractionRepository(drv *entsql.Driver, logger *slog.Logger) ExtractionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlExtractionRepository{drv: drv, logger: logger}
}

func (r *sqlExtractionRepository) Insert(ctx context.Context, e *entity.Extraction) error {
	query, args := entsql.Dialect(r.drv.Dialect()).
		Insert(TablePrescriptions).
		Columns(colUserEmail, colOriginalText, colProcessedText, colCleanedText,
			colImageID, colMessage, colTimestamp, colFilename).
		Values(nullableString(e.UserEmail), e.OriginalText, e.ProcessedText, e.CleanedText,
			e.ImageID, StoredMessage, e.Timestamp.UTC(), e.Filename).
		Query()

	if err := r.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to insert extraction", "image_id", e.ImageID, "error", err)
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

func (r *sqlExtractionRepository) ListBySubmitter(ctx context.Context, submitter string) ([]*entity.Extraction, error) {
	b := entsql.Dialect(r.drv.Dialect())
	t := b.Table(TablePrescriptions)
	query, args := b.Select(
		t.C(colUserEmail), t.C(colOriginalText), t.C(colProcessedText), t.C(colCleanedText),
		t.C(colImageID), t.C(colTimestamp), t.C(colFilename),
	).
		From(t).
		Where(entsql.EQ(t.C(colUserEmail), submitter)).
		OrderBy(entsql.Desc(t.C(colTimestamp)), entsql.Desc(t.C(colID))).
		Query()

	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		r.logger.Error("failed to list extractions", "user_email", submitter, "error", err)
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	out := make([]*entity.Extraction, 0)
	for rows.Next() {
		var (
			email, original, processed, cleaned, imageID, filename sql.NullString
			ts                                                     sql.NullTime
		)
		if err := rows.Scan(&email, &original, &processed, &cleaned, &imageID, &ts, &filename); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		e := &entity.Extraction{
			ImageID:       imageID.String,
			OriginalText:  original.String,
			ProcessedText: processed.String,
			CleanedText:   cleaned.String,
			Filename:      filename.String,
		}
		if email.Valid {
			v := email.String
			e.UserEmail = &v
		}
		if ts.Valid {
			e.Timestamp = ts.Time.UTC()
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractions: %w", err)
	}
	return out, nil
}

func (r *sqlExtractionRepository) Ping(ctx context.Context) error {
	return r.drv.DB().PingContext(ctx)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/entity"
)

const (
	msgNoPrescriptions = "No prescriptions found for this user"
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	multipartMemory    = 8 << 20
)

type extractResponse struct {
	OriginalText  string `json:"original_text"`
	ProcessedText string `json:"processed_text"`
	CleanedText   string `json:"cleaned_text"`
	ImageID       string `json:"image_id"`
	Message       string `json:"message"`
}

type prescriptionsResponse struct {
	Count         int                  `json:"count"`
	Prescriptions []*entity.Extraction `json:"prescriptions"`
}

// extractText handles POST /extract-text (multipart: file, optional user_email).
func (s *Server) extractText(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), s.logger)

	capped := s.cfg.MaxUploadBytes > 0
	if capped {
		// room for the multipart envelope on top of the document itself
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "file too large", common.CodeInvalidInput)
			return
		}
		writeMessage(w, http.StatusBadRequest, "expected a multipart form with a file field", common.CodeInvalidInput)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required", common.CodeInvalidInput)
		return
	}
	defer file.Close()

	var src io.Reader = file
	if capped {
		src = io.LimitReader(file, s.cfg.MaxUploadBytes+1)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		writeMessage(w, http.StatusBadRequest, "could not read uploaded file", common.CodeInvalidInput)
		return
	}

	var submitter *string
	if v := strings.TrimSpace(r.FormValue("user_email")); v != "" {
		submitter = &v
	}

	logger.Info("starting processing", "filename", header.Filename, "bytes", buf.Len())
	rec, err := s.svc.Extract(r.Context(), entity.ExtractionRequest{
		Document:  buf.Bytes(),
		Submitter: submitter,
		Filename:  header.Filename,
	})
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		OriginalText:  rec.OriginalText,
		ProcessedText: rec.ProcessedText,
		CleanedText:   rec.CleanedText,
		ImageID:       rec.ImageID,
		Message: fmt.Sprintf("Use /view-image/%s/original or /view-image/%s/processed to view images",
			rec.ImageID, rec.ImageID),
	})
}

// userPrescriptions handles GET /user-prescriptions?user_email=...
func (s *Server) userPrescriptions(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), s.logger)
	email := r.URL.Query().Get("user_email")

	recs, err := s.svc.ListBySubmitter(r.Context(), email)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	if len(recs) == 0 {
		writeMessage(w, http.StatusNotFound, msgNoPrescriptions, "")
		return
	}
	writeJSON(w, http.StatusOK, prescriptionsResponse{Count: len(recs), Prescriptions: recs})
}

// exportPrescriptions handles GET /user-prescriptions/export?user_email=...&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) exportPrescriptions(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), s.logger)
	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("user_email"))

	if err := common.NewValidator().Field("user_email", email, common.Required, common.Email).Err(); err != nil {
		writeError(w, logger, err)
		return
	}
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error(), common.CodeInvalidInput)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error(), common.CodeInvalidInput)
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		writeMessage(w, http.StatusBadRequest, "to must not be before from", common.CodeInvalidInput)
		return
	}

	data, rows, err := s.exporter.ExportXLSX(r.Context(), email, from, to)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	if rows == 0 {
		writeMessage(w, http.StatusNotFound, msgNoPrescriptions, "")
		return
	}

	filename := fmt.Sprintf("prescriptions_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// viewImage handles GET /view-image/{image_id}/{image_type}.
func (s *Server) viewImage(w http.ResponseWriter, r *http.Request) {
	logger := common.LoggerFromContext(r.Context(), s.logger)
	id := chi.URLParam(r, "image_id")
	variant := chi.URLParam(r, "image_type")

	rc, err := s.svc.OpenImage(r.Context(), id, variant)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("failed to stream image", "image_id", id, "error", err)
	}
}

// health handles GET /healthz.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	return &t, nil
}

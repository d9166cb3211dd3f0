package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/rxscan/internal/common"
)

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Message: msg, Code: code})
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case common.CodeInvalidInput:
		return http.StatusBadRequest
	case common.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Client errors carry their message;
// server errors only their category, with details going to the log.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := common.CodeOf(err)
	status := statusFor(code)

	msg := http.StatusText(status)
	var ae *common.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "error", err)
		msg = "Processing error: " + msg
	}
	writeMessage(w, status, msg, code)
}

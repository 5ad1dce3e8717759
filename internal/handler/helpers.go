package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/repository"
	"github.com/chatsync/internal/service"
	"github.com/chatsync/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

// writeEngineError переводит ошибки движка в HTTP-статусы.
func writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, repository.ErrInvalidParticipants),
		errors.Is(err, repository.ErrInvalidStatus),
		errors.Is(err, repository.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrUnknownSender),
		errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrStoreUnavailable):
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrInvalidBody is returned when a request body cannot be decoded.
var ErrInvalidBody = errors.New("invalid request body")

// decodeJSON reads the request body into v.
func decodeJSON(w http.ResponseWriter, req bunrouter.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}

// writeError maps an engine error to its HTTP status. Unexpected errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, scoring.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusForbidden)
	case errors.Is(err, types.ErrAlreadyExists):
		http.Error(w, "Already exists", http.StatusConflict)
	case errors.Is(err, types.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, scoring.ErrInvalidContent),
		errors.Is(err, types.ErrInvalidLeaderboardField),
		errors.Is(err, ErrInvalidBody):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("Request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
	return nil
}

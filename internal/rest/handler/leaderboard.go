package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/identity"
	restTypes "github.com/fibgame/fibs/internal/rest/types"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// LeaderboardHandler handles leaderboard reads.
type LeaderboardHandler struct {
	leaderboard *scoring.LeaderboardService
	logger      *zap.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(leaderboard *scoring.LeaderboardService, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// GetLeaderboard returns the top entries for the requested ordering.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, req bunrouter.Request) error {
	query := req.URL.Query()

	field := types.LeaderboardField(query.Get("orderBy"))
	if field == "" {
		field = types.LeaderboardFieldPoints
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return writeError(w, h.logger, fmt.Errorf("%w: limit must be a number", scoring.ErrInvalidContent))
		}
		limit = n
	}

	entries, err := h.leaderboard.Top(req.Context(), field, limit)
	if err != nil {
		return writeError(w, h.logger, err)
	}

	return bunrouter.JSON(w, restTypes.LeaderboardResponse{OrderBy: field, Entries: entries})
}

// GetOwnEntry returns the caller's entry and level.
func (h *LeaderboardHandler) GetOwnEntry(w http.ResponseWriter, req bunrouter.Request) error {
	entry, err := h.leaderboard.Get(req.Context(), identity.UserID(req.Context()))
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, entry)
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/fibgame/fibs/internal/identity"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// VoteHandler handles vote submissions.
type VoteHandler struct {
	votes  *scoring.VoteService
	logger *zap.Logger
}

// NewVoteHandler creates a new vote handler.
func NewVoteHandler(votes *scoring.VoteService, logger *zap.Logger) *VoteHandler {
	return &VoteHandler{
		votes:  votes,
		logger: logger,
	}
}

// CreateVote records the caller's guess on a pair. Every rejection, including
// a malformed body, is a 403.
func (h *VoteHandler) CreateVote(w http.ResponseWriter, req bunrouter.Request) error {
	var vote scoring.VoteRequest
	if err := decodeJSON(w, req, &vote); err != nil {
		return writeError(w, h.logger, fmt.Errorf("%w: %w", scoring.ErrInvalidVote, err))
	}

	result, err := h.votes.CreateVote(req.Context(), identity.UserID(req.Context()), &vote)
	if err != nil {
		return writeError(w, h.logger, err)
	}

	return bunrouter.JSON(w, result)
}

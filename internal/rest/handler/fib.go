package handler

import (
	"fmt"
	"net/http"

	"github.com/fibgame/fibs/internal/identity"
	restTypes "github.com/fibgame/fibs/internal/rest/types"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// FibHandler handles fib endpoints.
type FibHandler struct {
	fibs   *scoring.FibService
	logger *zap.Logger
}

// NewFibHandler creates a new fib handler.
func NewFibHandler(fibs *scoring.FibService, logger *zap.Logger) *FibHandler {
	return &FibHandler{
		fibs:   fibs,
		logger: logger,
	}
}

// CreateFib writes a fib authored by the caller.
func (h *FibHandler) CreateFib(w http.ResponseWriter, req bunrouter.Request) error {
	var draft scoring.FibDraft
	if err := decodeJSON(w, req, &draft); err != nil {
		return writeError(w, h.logger, err)
	}

	fib, err := h.fibs.Create(req.Context(), identity.UserID(req.Context()), &draft)
	if err != nil {
		return writeError(w, h.logger, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return bunrouter.JSON(w, fib)
}

// GetFib returns one fib.
func (h *FibHandler) GetFib(w http.ResponseWriter, req bunrouter.Request) error {
	fib, err := h.fibs.Get(req.Context(), req.Param("id"))
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, fib)
}

// ListFibs returns the fibs of the game named by the query.
func (h *FibHandler) ListFibs(w http.ResponseWriter, req bunrouter.Request) error {
	game := req.URL.Query().Get("game")
	if game == "" {
		return writeError(w, h.logger, fmt.Errorf("%w: game is required", scoring.ErrInvalidContent))
	}

	fibs, err := h.fibs.ListByGame(req.Context(), game)
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, restTypes.ListFibsResponse{Fibs: fibs})
}

// RateFibs likes one fib and dislikes the other.
func (h *FibHandler) RateFibs(w http.ResponseWriter, req bunrouter.Request) error {
	var rating scoring.RateRequest
	if err := decodeJSON(w, req, &rating); err != nil {
		return writeError(w, h.logger, err)
	}

	if err := h.fibs.Rate(req.Context(), identity.UserID(req.Context()), &rating); err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, restTypes.StatusResponse{OK: true})
}

// ReportFib files the caller's complaint about a fib.
func (h *FibHandler) ReportFib(w http.ResponseWriter, req bunrouter.Request) error {
	var report restTypes.ReportRequest
	if err := decodeJSON(w, req, &report); err != nil {
		return writeError(w, h.logger, err)
	}

	err := h.fibs.Report(req.Context(), identity.UserID(req.Context()), req.Param("id"), report.Issue)
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, restTypes.StatusResponse{OK: true})
}

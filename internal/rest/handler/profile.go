package handler

import (
	"net/http"

	"github.com/fibgame/fibs/internal/identity"
	restTypes "github.com/fibgame/fibs/internal/rest/types"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// ProfileHandler handles login and profile endpoints.
type ProfileHandler struct {
	profiles *scoring.ProfileService
	logger   *zap.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles *scoring.ProfileService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// Login writes the caller's profile from the verified identity.
func (h *ProfileHandler) Login(w http.ResponseWriter, req bunrouter.Request) error {
	id, ok := identity.FromContext(req.Context())
	if !ok {
		return writeError(w, h.logger, scoring.ErrUnauthorized)
	}

	result, err := h.profiles.Login(req.Context(), &scoring.LoginRequest{
		UserID:        id.UserID,
		DisplayName:   id.DisplayName,
		EmailVerified: id.EmailVerified,
		Anonymous:     id.Anonymous,
	})
	if err != nil {
		return writeError(w, h.logger, err)
	}

	return bunrouter.JSON(w, result)
}

// GetProfile returns the caller's profile.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, req bunrouter.Request) error {
	profile, err := h.profiles.Get(req.Context(), identity.UserID(req.Context()))
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, profile)
}

// Rename changes the caller's display name.
func (h *ProfileHandler) Rename(w http.ResponseWriter, req bunrouter.Request) error {
	var body restTypes.RenameRequest
	if err := decodeJSON(w, req, &body); err != nil {
		return writeError(w, h.logger, err)
	}

	profile, err := h.profiles.Rename(req.Context(), identity.UserID(req.Context()), body.DisplayName)
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, profile)
}

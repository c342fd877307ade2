package handler

import (
	"context"
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

// NotificationHandler handles the caller's notification list.
type NotificationHandler struct {
	notifier *scoring.Notifier
	logger   *zap.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(notifier *scoring.Notifier, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// ListNotifications returns the caller's notifications.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, req bunrouter.Request) error {
	list, err := h.notifier.List(req.Context(), identity.UserID(req.Context()))
	if err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, restTypes.NotificationsResponse{Notifications: list.List})
}

// MarkSeen flags the notification identified by its type and created time as seen.
func (h *NotificationHandler) MarkSeen(w http.ResponseWriter, req bunrouter.Request) error {
	return h.flag(w, req, h.notifier.MarkSeen)
}

// MarkDeleted flags the notification identified by its type and created time as deleted.
func (h *NotificationHandler) MarkDeleted(w http.ResponseWriter, req bunrouter.Request) error {
	return h.flag(w, req, h.notifier.MarkDeleted)
}

func (h *NotificationHandler) flag(
	w http.ResponseWriter, req bunrouter.Request,
	mark func(ctx context.Context, userID string, typ types.NotificationType, created int64) error,
) error {
	created, err := strconv.ParseInt(req.Param("created"), 10, 64)
	if err != nil {
		return writeError(w, h.logger, fmt.Errorf("%w: created must be a number", scoring.ErrInvalidContent))
	}

	typ := types.NotificationType(req.Param("type"))
	if err := mark(req.Context(), identity.UserID(req.Context()), typ, created); err != nil {
		return writeError(w, h.logger, err)
	}
	return bunrouter.JSON(w, restTypes.StatusResponse{OK: true})
}

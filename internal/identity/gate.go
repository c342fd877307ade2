package identity

import (
	"net/http"
	"strings"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

const (
	// SessionCookie is the cookie checked when no Authorization header is sent.
	SessionCookie = "__session"

	bearerScheme = "Bearer"
)

// Gate is a middleware that rejects requests without a valid credential.
type Gate struct {
	verifier Verifier
	logger   *zap.Logger
}

// NewGate creates a new identity gate.
func NewGate(verifier Verifier, logger *zap.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		logger:   logger.Named("identity_gate"),
	}
}

// AsRESTMiddleware returns a bunrouter middleware that verifies the caller.
func (g *Gate) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		token := Token(req.Request)
		if token == "" {
			g.logger.Debug("No credential on request", zap.String("path", req.URL.Path))
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return nil
		}

		id, err := g.verifier.Verify(req.Context(), token)
		if err != nil {
			g.logger.Debug("Credential rejected",
				zap.String("path", req.URL.Path),
				zap.Error(err))
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return nil
		}

		return next(w, req.WithContext(WithIdentity(req.Context(), id)))
	}
}

// Token extracts the credential from the Authorization header, falling back
// to the session cookie. A Bearer header is authoritative even when its token
// is empty.
func Token(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, _ := strings.Cut(header, " "); scheme == bearerScheme {
		return strings.TrimSpace(token)
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}

	return ""
}

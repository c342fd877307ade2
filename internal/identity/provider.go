package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/fibgame/fibs/internal/setup/config"
	"go.uber.org/zap"
)

// ErrUnknownProvider is returned for an identity provider name that is not
// supported.
var ErrUnknownProvider = errors.New("unknown identity provider")

const (
	ProviderFirebase = "firebase"
	ProviderStatic   = "static"
)

// NewVerifier builds the verifier named by cfg.Provider. An empty provider
// means firebase.
func NewVerifier(ctx context.Context, cfg *config.Identity, logger *zap.Logger) (Verifier, error) {
	switch cfg.Provider {
	case ProviderFirebase, "":
		verifier, err := NewFirebaseVerifier(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
		if err != nil {
			return nil, err
		}
		return verifier, nil
	case ProviderStatic:
		logger.Warn("Using static identity tokens, do not use this in production",
			zap.Int("tokens", len(cfg.StaticTokens)))
		return NewStaticVerifierFromConfig(cfg.StaticTokens), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

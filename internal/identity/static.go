package identity

import (
	"context"

	"github.com/fibgame/fibs/internal/setup/config"
)

// StaticVerifier resolves tokens from a fixed table. It is meant for local
// development and tests.
type StaticVerifier struct {
	tokens map[string]Identity
}

// NewStaticVerifier creates a verifier over the given token table.
func NewStaticVerifier(tokens map[string]Identity) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// NewStaticVerifierFromConfig creates a verifier from the configured tokens.
func NewStaticVerifierFromConfig(tokens map[string]config.StaticIdentity) *StaticVerifier {
	table := make(map[string]Identity, len(tokens))
	for token, entry := range tokens {
		table[token] = Identity{
			UserID:        entry.UserID,
			DisplayName:   entry.DisplayName,
			EmailVerified: entry.EmailVerified,
			Anonymous:     entry.Anonymous,
		}
	}
	return NewStaticVerifier(table)
}

// Verify looks the token up.
func (v *StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	id, ok := v.tokens[token]
	if !ok || id.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &id, nil
}

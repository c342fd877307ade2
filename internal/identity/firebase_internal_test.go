package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityFromClaims(t *testing.T) {
	t.Parallel()

	id := identityFromClaims("uid", "password", map[string]any{
		"name":           "Alice",
		"email_verified": true,
	})
	assert.Equal(t, &Identity{UserID: "uid", DisplayName: "Alice", EmailVerified: true}, id)

	id = identityFromClaims("anon", anonymousProvider, map[string]any{"name": 42})
	assert.Equal(t, &Identity{UserID: "anon", Anonymous: true}, id)
}

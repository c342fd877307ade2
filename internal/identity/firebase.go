package identity

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const anonymousProvider = "anonymous"

// FirebaseVerifier verifies Firebase ID tokens.
type FirebaseVerifier struct {
	client *auth.Client
	logger *zap.Logger
}

// NewFirebaseVerifier creates a verifier for the given project. Application
// default credentials are used when credentialsFile is empty.
func NewFirebaseVerifier(
	ctx context.Context, projectID, credentialsFile string, logger *zap.Logger,
) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}

	return &FirebaseVerifier{
		client: client,
		logger: logger.Named("firebase_verifier"),
	}, nil
}

// Verify checks the ID token signature, expiry and audience.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		v.logger.Debug("Rejected ID token", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return identityFromClaims(decoded.UID, decoded.Firebase.SignInProvider, decoded.Claims), nil
}

func identityFromClaims(uid, provider string, claims map[string]any) *Identity {
	id := &Identity{
		UserID:    uid,
		Anonymous: provider == anonymousProvider,
	}

	if name, ok := claims["name"].(string); ok {
		id.DisplayName = name
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}

	return id
}

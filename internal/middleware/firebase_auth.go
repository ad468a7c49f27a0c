package middleware

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/labstack/echo/v4"
)

// TokenVerifier is the part of *auth.Client used to check Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// UserLookup maps a Firebase UID onto a local user.
type UserLookup interface {
	GetUserByFirebaseUID(firebaseUID string) (*models.User, error)
}

// FirebaseResolver verifies Firebase ID tokens and maps the UID to the local
// user id, so notification channels stay keyed by numeric ids.
type FirebaseResolver struct {
	verifier TokenVerifier
	users    UserLookup
}

func NewFirebaseResolver(verifier TokenVerifier, users UserLookup) *FirebaseResolver {
	return &FirebaseResolver{verifier: verifier, users: users}
}

func (r *FirebaseResolver) Resolve(ctx context.Context, idToken string) (models.Identity, error) {
	token, err := r.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid or expired ID token: %w", err)
	}
	user, err := r.users.GetUserByFirebaseUID(token.UID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("no local user for firebase uid: %w", err)
	}
	return models.Identity{UserID: user.ID, Name: user.Name, Email: user.Email}, nil
}

// FirebaseAuthMiddleware creates an Echo middleware to verify Firebase ID tokens
func FirebaseAuthMiddleware(authClient TokenVerifier, users UserLookup) echo.MiddlewareFunc {
	return Authenticate(NewFirebaseResolver(authClient, users), false)
}

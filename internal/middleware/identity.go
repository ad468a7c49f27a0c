package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/labstack/echo/v4"
)

const identityKey = "identity"

var errNoToken = errors.New("missing bearer token")

// IdentityResolver turns a bearer token into the caller's identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// ResolverFunc adapts a function to IdentityResolver.
type ResolverFunc func(ctx context.Context, token string) (models.Identity, error)

func (f ResolverFunc) Resolve(ctx context.Context, token string) (models.Identity, error) {
	return f(ctx, token)
}

// FirstOf tries each resolver in order and returns the first identity found.
func FirstOf(resolvers ...IdentityResolver) IdentityResolver {
	return ResolverFunc(func(ctx context.Context, token string) (models.Identity, error) {
		err := errors.New("no identity resolver configured")
		for _, r := range resolvers {
			var id models.Identity
			if id, err = r.Resolve(ctx, token); err == nil {
				return id, nil
			}
		}
		return models.Identity{}, err
	})
}

// Authenticate resolves the caller from the Authorization header. With
// allowQueryToken the `token` query parameter is accepted as well, since
// browsers cannot set headers on a websocket upgrade.
func Authenticate(resolver IdentityResolver, allowQueryToken bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c, allowQueryToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			identity, err := resolver.Resolve(c.Request().Context(), token)
			if err != nil || identity.UserID == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			SetIdentity(c, identity)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context, allowQuery bool) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if t := c.QueryParam("token"); t != "" {
				return t, nil
			}
		}
		return "", errNoToken
	}

	// Expecting "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("Authorization header must be in Bearer format")
	}
	return parts[1], nil
}

func SetIdentity(c echo.Context, identity models.Identity) {
	c.Set(identityKey, identity)
}

// CurrentIdentity returns the identity stored by Authenticate.
func CurrentIdentity(c echo.Context) (models.Identity, bool) {
	identity, ok := c.Get(identityKey).(models.Identity)
	return identity, ok && identity.UserID != 0
}

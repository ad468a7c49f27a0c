package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/labstack/echo/v4"
)

func currentUserID(c echo.Context) (uint, error) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return identity.UserID, nil
}

package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/model"
)

const identityKey = "identity"

var errMissingCredentials = errors.New("missing authorization header")

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok && id.ID != ""
}

// userID returns the authenticated identity id, or "guest" on public routes.
func userID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return id.ID
	}
	return "guest"
}

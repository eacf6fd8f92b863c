package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/auth"
)

// Authenticate resolves the request's Authorization header through gate and
// stores the resulting identity in the context. Requests the gate rejects
// fail with apperr.ErrUnauthenticated, which the error handler renders as
// 401.
func Authenticate(gate auth.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return apperr.With(apperr.ErrUnauthenticated, errMissingCredentials)
			}
			id, err := gate.Resolve(c.Request().Context(), header)
			if err != nil {
				return err
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

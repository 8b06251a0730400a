package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/careercompass/core/user"
)

// capabilityMiddleware lets the request through when the authenticated user's role grants the capability.
// The role is read from the database, not the token, so a role change applies to live tokens.
func capabilityMiddleware(svc *user.Service, capability user.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.Can(capability) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// authedMiddleware loads the authenticated user, rejecting deleted or deactivated accounts.
func authedMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextUser(ctx, svc); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

package api

import (
	"github.com/labstack/echo/v4"
	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/auth"
)

const userKey = "user_id"

// authenticate resolves the bearer token into the caller's user ID.
func authenticate(v auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return apperr.ErrUnauthenticated
			}
			userID, err := v.Verify(c.Request().Context(), token)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindUnauthenticated {
					return err
				}
				return &apperr.Error{Kind: apperr.KindUnauthenticated, Msg: "not authorized", Err: err}
			}
			c.Set(userKey, userID)
			return next(c)
		}
	}
}

func callerID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

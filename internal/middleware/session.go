package middleware

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/patient-records/internal/model"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "session"

// IdentityResolver maps a session token to its user; nil, nil means
// anonymous.
type IdentityResolver interface {
    ResolveIdentity(ctx context.Context, token string) (*model.User, error)
}

// Session resolves the request's identity once from the session cookie and
// stores it for CurrentUser.  A cookie that no longer names a live session
// is cleared.  Store failures abort the request like any other storage
// fault.
func Session(resolver IdentityResolver, secureCookie bool, logger zerolog.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            ck, err := c.Cookie(SessionCookie)
            if err != nil || ck.Value == "" {
                return next(c)
            }

            ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
            u, err := resolver.ResolveIdentity(ctx, ck.Value)
            cancel()
            if err != nil {
                logger.Error().Err(err).Str("request_id", requestID(c)).Msg("resolve session identity")
                return err
            }
            if u == nil {
                ClearSessionCookie(c, secureCookie)
            } else {
                SetUser(c, u)
            }
            return next(c)
        }
    }
}

// WriteSessionCookie stores token in a persistent cookie that survives a
// browser restart until exp.
func WriteSessionCookie(c echo.Context, token string, exp time.Time, secure bool) {
    c.SetCookie(&http.Cookie{
        Name:     SessionCookie,
        Value:    token,
        Path:     "/",
        Expires:  exp,
        MaxAge:   int(time.Until(exp).Seconds()),
        HttpOnly: true,
        Secure:   secure,
        SameSite: http.SameSiteLaxMode,
    })
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c echo.Context, secure bool) {
    c.SetCookie(&http.Cookie{
        Name:     SessionCookie,
        Value:    "",
        Path:     "/",
        MaxAge:   -1,
        Expires:  time.Unix(0, 0),
        HttpOnly: true,
        Secure:   secure,
        SameSite: http.SameSiteLaxMode,
    })
}

package middleware // middleware provides shared request processing for handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Flasher queues a one-time message for the next rendered page.
type Flasher func(c echo.Context, category, message string)

// RequireLogin sends anonymous requests to loginPath with an info flash.
// It relies on Session having run earlier in the chain.
func RequireLogin(loginPath string, flash Flasher) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if _, ok := CurrentUser(c); !ok {
                if flash != nil {
                    flash(c, "info", "Please log in to access this page.")
                }
                return c.Redirect(http.StatusFound, loginPath)
            }
            return next(c)
        }
    }
}

// RedirectIfAuthenticated bounces signed-in users to path, e.g. away from
// the login form.
func RedirectIfAuthenticated(path string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if _, ok := CurrentUser(c); ok {
                return c.Redirect(http.StatusFound, path)
            }
            return next(c)
        }
    }
}

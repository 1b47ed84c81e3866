package middleware

// identity.go holds the per-request identity resolved by Session.  Handlers
// read it through CurrentUser instead of consulting the session store again.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/patient-records/internal/model"
)

// userKey is the echo.Context key under which Session stores the user.
const userKey = "user"

// SetUser records u as the request's identity.
func SetUser(c echo.Context, u *model.User) { c.Set(userKey, u) }

// CurrentUser returns the authenticated user, or nil and false for an
// anonymous request.
func CurrentUser(c echo.Context) (*model.User, bool) {
    u, ok := c.Get(userKey).(*model.User)
    if !ok || u == nil {
        return nil, false
    }
    return u, true
}

// Actor names the requester for audit purposes: the username, or
// "anonymous".
func Actor(c echo.Context) string {
    if u, ok := CurrentUser(c); ok {
        return u.Username
    }
    return "anonymous"
}

package handler // HTTP handlers for the patient records site

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health is a liveness check for load balancers and monitoring.  It
// returns a plain text "ok" with 200 and touches no backing store.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

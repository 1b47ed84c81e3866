package router // package router wires handlers and middleware onto Echo

import (
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/patient-records/internal/handler"
    "github.com/iliyamo/patient-records/internal/middleware"
)

// Deps is everything the route table needs.  RateLimit guards the login
// and register submissions; nil disables it.
type Deps struct {
    Auth                 *handler.AuthHandler
    Patients             *handler.PatientHandler
    Identity             middleware.IdentityResolver
    RateLimit            echo.MiddlewareFunc
    PatientsRequireLogin bool
    SecureCookie         bool
    Logger               zerolog.Logger
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) (*echo.Echo, error) {
    renderer, err := handler.NewRenderer()
    if err != nil {
        return nil, err
    }

    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.Renderer = renderer
    e.Validator = handler.NewFormValidator()

    // Order matters: the access log needs the request id, and the session
    // must resolve before anything reads the identity.
    e.Use(middleware.Recovery(d.Logger))
    e.Use(middleware.RequestID())
    e.Use(middleware.Logger(d.Logger))
    e.Use(handler.FlashSecure(d.SecureCookie))
    e.Use(middleware.Session(d.Identity, d.SecureCookie, d.Logger))

    RegisterRoutes(e)
    RegisterAuth(e, d.Auth, d.RateLimit)
    RegisterPatients(e, d.Patients, d.PatientsRequireLogin)
    return e, nil
}

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the landing page and the account pages.  Only
// the form submissions are rate limited.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
    var submit []echo.MiddlewareFunc
    if limit != nil {
        submit = append(submit, limit)
    }
    anonOnly := middleware.RedirectIfAuthenticated("/")

    e.GET("/", a.Index)

    e.GET("/login", a.LoginForm, anonOnly)
    e.POST("/login", a.Login, append([]echo.MiddlewareFunc{anonOnly}, submit...)...)

    e.GET("/logout", a.Logout, middleware.RequireLogin("/login", handler.AddFlash))

    e.GET("/register", a.RegisterForm)
    e.POST("/register", a.Register, submit...)
}

// RegisterPatients registers the record pages.  They are open unless
// requireLogin is set.
func RegisterPatients(e *echo.Echo, p *handler.PatientHandler, requireLogin bool) {
    var guard []echo.MiddlewareFunc
    if requireLogin {
        guard = append(guard, middleware.RequireLogin("/login", handler.AddFlash))
    }

    e.GET("/patients", p.List, guard...)
    e.POST("/patients", p.Create, guard...)
    e.GET("/edit_patient/:patient_id", p.EditForm, guard...)
    e.POST("/edit_patient/:patient_id", p.Update, guard...)
    e.GET("/delete_patient/:patient_id", p.Delete, guard...)
}

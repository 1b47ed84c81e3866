package handler

import (
    "context"        // bounds every store call
    "errors"         // errors.Is on service sentinels
    "time"           // timeouts for store calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing
    "github.com/rs/zerolog"

    "github.com/iliyamo/patient-records/internal/middleware"
    "github.com/iliyamo/patient-records/internal/model"
    "github.com/iliyamo/patient-records/internal/repository"
    "github.com/iliyamo/patient-records/internal/service"
    "github.com/iliyamo/patient-records/internal/utils"
)

// Authenticator is what the auth pages need from the session service.
type Authenticator interface {
    Register(ctx context.Context, username, email, password string) (*model.User, error)
    Authenticate(ctx context.Context, username, password string) (*model.User, error)
    EstablishSession(ctx context.Context, u *model.User) (utils.SessionToken, error)
    TerminateSession(ctx context.Context, token string) error
}

// AuthHandler bundles dependencies for the login, logout and register
// pages.
type AuthHandler struct {
    Auth         Authenticator
    SecureCookie bool
    Logger       zerolog.Logger
}

func NewAuthHandler(a Authenticator, secureCookie bool, logger zerolog.Logger) *AuthHandler {
    return &AuthHandler{Auth: a, SecureCookie: secureCookie, Logger: logger}
}

// Index renders the landing page.
func (h *AuthHandler) Index(c echo.Context) error {
    return render(c, "index.html", nil)
}

// LoginForm renders the empty login form.
func (h *AuthHandler) LoginForm(c echo.Context) error {
    return render(c, "login.html", nil)
}

// Login checks the credentials and starts a persistent session.
func (h *AuthHandler) Login(c echo.Context) error {
    var f loginForm
    if err := c.Bind(&f); err != nil {
        return err
    }
    f.normalize()
    if err := c.Validate(&f); err != nil {
        for _, msg := range validationMessages(err) {
            AddFlash(c, "danger", msg)
        }
        return render(c, "login.html", nil)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Auth.Authenticate(ctx, f.Username, f.Password)
    if err != nil {
        if errors.Is(err, service.ErrInvalidCredentials) {
            h.Logger.Info().Str("username", f.Username).Str("remote_ip", c.RealIP()).Msg("login failed")
            AddFlash(c, "danger", "Invalid username or password")
            return render(c, "login.html", nil)
        }
        return err
    }

    tok, err := h.Auth.EstablishSession(ctx, u)
    if err != nil {
        return err
    }
    middleware.WriteSessionCookie(c, tok.Token, tok.Exp, h.SecureCookie)
    AddFlash(c, "success", "Logged in successfully!")
    return redirect(c, "/")
}

// Logout revokes the session and clears its cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
    if ck, err := c.Cookie(middleware.SessionCookie); err == nil && ck.Value != "" {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
        defer cancel()
        if err := h.Auth.TerminateSession(ctx, ck.Value); err != nil {
            return err
        }
    }
    middleware.ClearSessionCookie(c, h.SecureCookie)
    return redirect(c, "/login")
}

// RegisterForm renders the empty registration form.
func (h *AuthHandler) RegisterForm(c echo.Context) error {
    return render(c, "register.html", nil)
}

// Register creates an account and sends the user to the login page.
func (h *AuthHandler) Register(c echo.Context) error {
    var f registerForm
    if err := c.Bind(&f); err != nil {
        return err
    }
    f.normalize()
    if err := c.Validate(&f); err != nil {
        for _, msg := range validationMessages(err) {
            AddFlash(c, "danger", msg)
        }
        return render(c, "register.html", nil)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if _, err := h.Auth.Register(ctx, f.Username, f.Email, f.Password); err != nil {
        switch {
        case errors.Is(err, repository.ErrDuplicateUsername):
            AddFlash(c, "danger", "Username is already taken.")
            return render(c, "register.html", nil)
        case errors.Is(err, service.ErrUsernameRequired):
            AddFlash(c, "danger", "Username is required.")
            return render(c, "register.html", nil)
        case errors.Is(err, service.ErrPasswordTooLong):
            AddFlash(c, "danger", "Password must be at most 72 characters.")
            return render(c, "register.html", nil)
        }
        return err
    }
    AddFlash(c, "success", "Registration successful! Please log in.")
    return redirect(c, "/login")
}

package handler

import (
    "embed"
    "fmt"
    "html/template"
    "io"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/patient-records/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages are rendered inside layout.html.
var pages = []string{"index.html", "login.html", "register.html", "patients.html", "edit_patient.html"}

// Renderer is an echo.Renderer over the embedded page templates.
type Renderer struct {
    pages map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer() (*Renderer, error) {
    r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
    for _, name := range pages {
        t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
        if err != nil {
            return nil, fmt.Errorf("parse %s: %w", name, err)
        }
        r.pages[name] = t
    }
    return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
    t, ok := r.pages[name]
    if !ok {
        return fmt.Errorf("unknown template %q", name)
    }
    return t.ExecuteTemplate(w, "layout", data)
}

// view is the data every page receives.
type view struct {
    User    string
    Flashes []Flash
    Data    interface{}
}

// render writes a page with the pending flashes and the current identity.
func render(c echo.Context, name string, data interface{}) error {
    return renderStatus(c, http.StatusOK, name, data)
}

func renderStatus(c echo.Context, code int, name string, data interface{}) error {
    v := view{Flashes: takeFlashes(c), Data: data}
    if u, ok := middleware.CurrentUser(c); ok {
        v.User = u.Username
    }
    return c.Render(code, name, v)
}

// RateLimited re-renders the throttled form with a 429 so the user keeps
// the page and sees when to retry.
func RateLimited(c echo.Context, retryAfter time.Duration) error {
    page := "login.html"
    if c.Path() == "/register" {
        page = "register.html"
    }
    AddFlash(c, "danger", fmt.Sprintf("Too many attempts. Try again in %d seconds.", middleware.RetrySeconds(retryAfter)))
    return renderStatus(c, http.StatusTooManyRequests, page, nil)
}

// redirect answers with 302; queued flashes ride along in the cookie.
func redirect(c echo.Context, path string) error {
    return c.Redirect(http.StatusFound, path)
}

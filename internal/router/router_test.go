package router

import (
    "context"
    "errors"
    "io"
    "net/http"
    "net/http/cookiejar"
    "net/http/httptest"
    "net/url"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"

    "github.com/iliyamo/patient-records/internal/handler"
    "github.com/iliyamo/patient-records/internal/queue"
    "github.com/iliyamo/patient-records/internal/service"
    "github.com/iliyamo/patient-records/internal/service/servicetest"
)

type testApp struct {
    srv      *httptest.Server
    client   *http.Client
    users    *servicetest.Users
    sessions *servicetest.Sessions
    patients *servicetest.Patients
    events   *servicetest.Events
}

func newTestApp(t *testing.T, requireLogin bool) *testApp {
    t.Helper()
    return newTestAppWithLimit(t, requireLogin, nil)
}

func newTestAppWithLimit(t *testing.T, requireLogin bool, rateLimit echo.MiddlewareFunc) *testApp {
    t.Helper()
    app := &testApp{
        users:    servicetest.NewUsers(),
        sessions: servicetest.NewSessions(),
        patients: servicetest.NewPatients(),
        events:   &servicetest.Events{},
    }
    log := zerolog.Nop()
    auth := service.NewAuthenticator(app.users, app.sessions, "test-secret", 24*time.Hour, bcrypt.MinCost, log)
    svc := service.NewPatientService(app.patients, app.events, log)

    e, err := New(Deps{
        Auth:                 handler.NewAuthHandler(auth, false, log),
        Patients:             handler.NewPatientHandler(svc),
        Identity:             auth,
        RateLimit:            rateLimit,
        PatientsRequireLogin: requireLogin,
        Logger:               log,
    })
    require.NoError(t, err)

    app.srv = httptest.NewServer(e)
    t.Cleanup(app.srv.Close)

    jar, err := cookiejar.New(nil)
    require.NoError(t, err)
    app.client = &http.Client{
        Jar: jar,
        CheckRedirect: func(*http.Request, []*http.Request) error {
            return http.ErrUseLastResponse
        },
    }
    return app
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
    t.Helper()
    resp, err := a.client.Get(a.srv.URL + path)
    require.NoError(t, err)
    return resp, readBody(t, resp)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
    t.Helper()
    resp, err := a.client.PostForm(a.srv.URL+path, form)
    require.NoError(t, err)
    return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
    t.Helper()
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    require.NoError(t, err)
    return string(b)
}

func (a *testApp) registerAndLogin(t *testing.T, username, password string) {
    t.Helper()
    resp, _ := a.post(t, "/register", url.Values{
        "username": {username}, "email": {username + "@example.com"}, "password": {password},
    })
    require.Equal(t, http.StatusFound, resp.StatusCode)
    resp, _ = a.post(t, "/login", url.Values{"username": {username}, "password": {password}})
    require.Equal(t, http.StatusFound, resp.StatusCode)
    require.Equal(t, "/", resp.Header.Get("Location"))
}

func patientForm(gender, age string) url.Values {
    return url.Values{
        "id": {"9046"}, "gender": {gender}, "age": {age}, "hypertension": {"0"},
        "heart_disease": {"1"}, "ever_married": {"Yes"}, "work_type": {"Private"},
        "Residence_type": {"Urban"}, "avg_glucose_level": {"228.69"}, "bmi": {"36.6"},
        "smoking_status": {"formerly smoked"},
    }
}

func TestHealthz(t *testing.T) {
    app := newTestApp(t, false)
    resp, body := app.get(t, "/healthz")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "ok", body)
}

func TestRegisterLoginFlow(t *testing.T) {
    app := newTestApp(t, false)

    resp, _ := app.post(t, "/register", url.Values{
        "username": {"alice"}, "email": {"alice@example.com"}, "password": {"s3cret"},
    })
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/login", resp.Header.Get("Location"))

    _, body := app.get(t, "/login")
    assert.Contains(t, body, "Registration successful! Please log in.")

    resp, _ = app.post(t, "/login", url.Values{"username": {"alice"}, "password": {"s3cret"}})
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/", resp.Header.Get("Location"))

    resp, body = app.get(t, "/")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "Logged in successfully!")
    assert.Contains(t, body, "Signed in as alice")

    // flashes are shown once
    _, body = app.get(t, "/")
    assert.NotContains(t, body, "Logged in successfully!")
    assert.Contains(t, body, "Signed in as alice")
}

func TestLogin_WhileAuthenticatedRedirectsHome(t *testing.T) {
    app := newTestApp(t, false)
    app.registerAndLogin(t, "alice", "pw")

    resp, body := app.get(t, "/login")
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/", resp.Header.Get("Location"))
    assert.NotContains(t, body, "<form")

    resp, _ = app.post(t, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLogin_InvalidCredentialsReRenders(t *testing.T) {
    app := newTestApp(t, false)
    app.registerAndLogin(t, "alice", "pw")
    app.get(t, "/logout")

    for _, form := range []url.Values{
        {"username": {"alice"}, "password": {"nope"}},
        {"username": {"mallory"}, "password": {"pw"}},
    } {
        resp, body := app.post(t, "/login", form)
        assert.Equal(t, http.StatusOK, resp.StatusCode)
        assert.Contains(t, body, "Invalid username or password")
        assert.Contains(t, body, `action="/login"`)
    }
}

func TestLogin_MissingFieldsReRenders(t *testing.T) {
    app := newTestApp(t, false)
    resp, body := app.post(t, "/login", url.Values{"username": {"alice"}})
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "Password is required.")
}

func TestRegister_DuplicateUsername(t *testing.T) {
    app := newTestApp(t, false)
    form := url.Values{"username": {"bob"}, "email": {"bob@example.com"}, "password": {"pw"}}

    resp, _ := app.post(t, "/register", form)
    require.Equal(t, http.StatusFound, resp.StatusCode)

    resp, body := app.post(t, "/register", form)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "Username is already taken.")
    assert.Equal(t, 1, app.users.Count("bob"))
}

func TestRegister_ValidationErrors(t *testing.T) {
    app := newTestApp(t, false)
    resp, body := app.post(t, "/register", url.Values{
        "username": {"carol"}, "email": {"not-an-email"}, "password": {"pw"}, "confirm_password": {"other"},
    })
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "Enter a valid email address.")
    assert.Contains(t, body, "Passwords must match.")
    assert.Equal(t, 0, app.users.Count("carol"))
}

func TestLogout(t *testing.T) {
    app := newTestApp(t, false)

    resp, _ := app.get(t, "/logout")
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/login", resp.Header.Get("Location"))
    _, body := app.get(t, "/login")
    assert.Contains(t, body, "Please log in to access this page.")

    app.registerAndLogin(t, "alice", "pw")
    require.Equal(t, 1, app.sessions.Active())

    resp, _ = app.get(t, "/logout")
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/login", resp.Header.Get("Location"))
    assert.Equal(t, 0, app.sessions.Active())

    _, body = app.get(t, "/")
    assert.NotContains(t, body, "Signed in as")
}

func TestPatients_CRUD(t *testing.T) {
    app := newTestApp(t, false)

    resp, _ := app.post(t, "/patients", patientForm("Male", "30"))
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/patients", resp.Header.Get("Location"))

    resp, body := app.get(t, "/patients")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "Patient record added successfully!")
    assert.Contains(t, body, "formerly smoked")

    all, err := app.patients.List(context.Background())
    require.NoError(t, err)
    require.Len(t, all, 1)
    id := all[0].Hex()
    assert.Equal(t, "Urban", all[0].ResidenceType)

    _, body = app.get(t, "/edit_patient/"+id)
    assert.Contains(t, body, `value="Male"`)

    resp, _ = app.post(t, "/edit_patient/"+id, patientForm("Female", "31"))
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    _, body = app.get(t, "/patients")
    assert.Contains(t, body, "Patient record updated successfully!")
    assert.NotContains(t, body, ">Male<")

    resp, _ = app.get(t, "/delete_patient/"+id)
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    _, body = app.get(t, "/patients")
    assert.Contains(t, body, "Patient record deleted successfully!")
    assert.NotContains(t, body, "/edit_patient/"+id)

    assert.Equal(t, []string{queue.PatientCreated, queue.PatientUpdated, queue.PatientDeleted}, app.events.Types())
    for _, ev := range app.events.All() {
        assert.Equal(t, "anonymous", ev.Actor)
    }
}

func TestPatients_ActorIsLoggedInUser(t *testing.T) {
    app := newTestApp(t, false)
    app.registerAndLogin(t, "alice", "pw")

    resp, _ := app.post(t, "/patients", patientForm("Male", "30"))
    require.Equal(t, http.StatusFound, resp.StatusCode)
    evs := app.events.All()
    require.Len(t, evs, 1)
    assert.Equal(t, "alice", evs[0].Actor)
}

func TestPatients_MissingRecord(t *testing.T) {
    app := newTestApp(t, false)
    missing := "64b7f0c2a1b2c3d4e5f60718"

    resp, body := app.get(t, "/edit_patient/"+missing)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, `value=""`)

    resp, _ = app.post(t, "/edit_patient/"+missing, patientForm("Female", "31"))
    assert.Equal(t, http.StatusFound, resp.StatusCode)

    resp, _ = app.get(t, "/delete_patient/not-a-hex-id")
    assert.Equal(t, http.StatusFound, resp.StatusCode)

    assert.Empty(t, app.events.Types())
}

func TestPatients_StoreErrorIs500(t *testing.T) {
    app := newTestApp(t, false)
    app.patients.Err = errors.New("mongo unavailable")

    resp, _ := app.get(t, "/patients")
    assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPatients_RequireLogin(t *testing.T) {
    app := newTestApp(t, true)

    resp, _ := app.get(t, "/patients")
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/login", resp.Header.Get("Location"))

    resp, _ = app.post(t, "/patients", patientForm("Male", "30"))
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, "/login", resp.Header.Get("Location"))
    assert.Empty(t, app.events.Types())

    app.registerAndLogin(t, "alice", "pw")
    resp, body := app.get(t, "/patients")
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.True(t, strings.Contains(body, `action="/patients"`))
}

func TestRegister_PasswordTooLongReRenders(t *testing.T) {
    app := newTestApp(t, false)

    for name, pw := range map[string]string{
        "ascii":     strings.Repeat("a", 73),
        "multibyte": strings.Repeat("é", 40),
    } {
        t.Run(name, func(t *testing.T) {
            resp, body := app.post(t, "/register", url.Values{
                "username": {"dave"}, "email": {"dave@example.com"}, "password": {pw},
            })
            assert.Equal(t, http.StatusOK, resp.StatusCode)
            assert.Contains(t, body, "Password must be at most 72 characters.")
            assert.Equal(t, 0, app.users.Count("dave"))
        })
    }

    resp, _ := app.post(t, "/register", url.Values{
        "username": {"dave"}, "email": {"dave@example.com"}, "password": {strings.Repeat("a", 72)},
    })
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, 1, app.users.Count("dave"))
}

func TestRegister_BlankUsernameReRenders(t *testing.T) {
    app := newTestApp(t, false)

    resp, body := app.post(t, "/register", url.Values{
        "username": {"   "}, "email": {"blank@example.com"}, "password": {"pw"},
    })
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Contains(t, body, "Username is required.")
    assert.Equal(t, 0, app.users.Count(""))
    assert.Equal(t, 0, app.users.Count("   "))

    resp, _ = app.post(t, "/register", url.Values{
        "username": {"  erin  "}, "email": {" erin@example.com "}, "password": {"pw"},
    })
    assert.Equal(t, http.StatusFound, resp.StatusCode)
    assert.Equal(t, 1, app.users.Count("erin"))
}

// allowN lets the first n submissions through and throttles the rest.
func allowN(n int) echo.MiddlewareFunc {
    seen := 0
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            seen++
            if seen > n {
                return handler.RateLimited(c, 30*time.Second)
            }
            return next(c)
        }
    }
}

func TestLogin_ThrottledReRendersForm(t *testing.T) {
    app := newTestAppWithLimit(t, false, allowN(1))

    resp, _ := app.post(t, "/login", url.Values{"username": {"frank"}, "password": {"nope"}})
    assert.Equal(t, http.StatusOK, resp.StatusCode)

    resp, body := app.post(t, "/login", url.Values{"username": {"frank"}, "password": {"nope"}})
    assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
    assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
    assert.Contains(t, body, "Too many attempts. Try again in 30 seconds.")
    assert.Contains(t, body, `action="/login"`)

    resp, body = app.post(t, "/register", url.Values{
        "username": {"frank"}, "email": {"frank@example.com"}, "password": {"pw"},
    })
    assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
    assert.Contains(t, body, `action="/register"`)
    assert.Equal(t, 0, app.users.Count("frank"))
}

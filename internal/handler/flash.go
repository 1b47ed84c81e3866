package handler

import (
    "encoding/base64"
    "encoding/json"
    "net/http"

    "github.com/labstack/echo/v4"
)

// FlashCookie carries one-time messages across a redirect.
const FlashCookie = "flash"

const flashStateKey = "flash_state"

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
    Category string `json:"category"`
    Message  string `json:"message"`
}

type flashState struct {
    incoming []Flash
    pending  []Flash
    consumed bool
    secure   bool
}

// AddFlash queues a message.  If the response is not a rendered page the
// queue is written to the flash cookie just before the headers go out, so
// the message survives the redirect.
func AddFlash(c echo.Context, category, message string) {
    st := loadFlashState(c)
    if st.pending == nil {
        c.Response().Before(func() {
            if st.consumed || len(st.incoming)+len(st.pending) == 0 {
                return
            }
            writeFlashCookie(c, append(st.incoming, st.pending...), st.secure)
        })
    }
    st.pending = append(st.pending, Flash{Category: category, Message: message})
}

// takeFlashes returns every message due on this page and clears the cookie.
func takeFlashes(c echo.Context) []Flash {
    st := loadFlashState(c)
    out := append(append([]Flash{}, st.incoming...), st.pending...)
    if len(st.incoming) > 0 {
        clearFlashCookie(c, st.secure)
    }
    st.consumed = true
    return out
}

// FlashSecure marks the flash cookie Secure for this request.
func FlashSecure(secure bool) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            loadFlashState(c).secure = secure
            return next(c)
        }
    }
}

func loadFlashState(c echo.Context) *flashState {
    if st, ok := c.Get(flashStateKey).(*flashState); ok {
        return st
    }
    st := &flashState{}
    if ck, err := c.Cookie(FlashCookie); err == nil && ck.Value != "" {
        st.incoming = decodeFlashes(ck.Value)
    }
    c.Set(flashStateKey, st)
    return st
}

func encodeFlashes(fs []Flash) string {
    b, _ := json.Marshal(fs)
    return base64.RawURLEncoding.EncodeToString(b)
}

// decodeFlashes drops a tampered or truncated cookie silently.
func decodeFlashes(v string) []Flash {
    b, err := base64.RawURLEncoding.DecodeString(v)
    if err != nil {
        return nil
    }
    var fs []Flash
    if err := json.Unmarshal(b, &fs); err != nil {
        return nil
    }
    return fs
}

func writeFlashCookie(c echo.Context, fs []Flash, secure bool) {
    c.SetCookie(&http.Cookie{
        Name:     FlashCookie,
        Value:    encodeFlashes(fs),
        Path:     "/",
        MaxAge:   60,
        HttpOnly: true,
        Secure:   secure,
        SameSite: http.SameSiteLaxMode,
    })
}

func clearFlashCookie(c echo.Context, secure bool) {
    c.SetCookie(&http.Cookie{
        Name:     FlashCookie,
        Value:    "",
        Path:     "/",
        MaxAge:   -1,
        HttpOnly: true,
        Secure:   secure,
        SameSite: http.SameSiteLaxMode,
    })
}

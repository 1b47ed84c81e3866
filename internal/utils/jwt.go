package utils // package utils provides helper functions for token creation and hashing

import (
    "errors"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/google/uuid"
)

// ErrInvalidSessionToken is returned for tokens that fail signature, expiry
// or claim checks.
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionToken is a signed session cookie value along with the session it
// names and its expiry.
type SessionToken struct {
    Token     string    // the serialized JWT string
    SessionID string    // sid claim, primary key of the sessions row
    Exp       time.Time // UTC expiration time
}

// SessionClaims is the payload of a session cookie.  Subject carries the
// user ID as a decimal string.
type SessionClaims struct {
    SessionID string `json:"sid"`
    jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c SessionClaims) UserID() (uint64, error) {
    return strconv.ParseUint(c.Subject, 10, 64)
}

// NewSessionToken builds and signs an HS256 JWT naming a fresh random
// session for userID, valid for ttl.
func NewSessionToken(secret string, userID uint64, ttl time.Duration) (SessionToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    sid := uuid.NewString()
    claims := SessionClaims{
        SessionID: sid,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   strconv.FormatUint(userID, 10),
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{Token: signed, SessionID: sid, Exp: exp}, nil
}

// ParseSessionToken verifies raw with secret and returns its claims.  Any
// failure yields ErrInvalidSessionToken.
func ParseSessionToken(secret, raw string) (SessionClaims, error) {
    var claims SessionClaims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return SessionClaims{}, ErrInvalidSessionToken
    }
    if claims.SessionID == "" {
        return SessionClaims{}, ErrInvalidSessionToken
    }
    if _, err := claims.UserID(); err != nil {
        return SessionClaims{}, ErrInvalidSessionToken
    }
    return claims, nil
}

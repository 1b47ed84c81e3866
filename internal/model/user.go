package model

import "time"

// User represents an account row in the `users` table.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  Email        – contact address, not used for login.
//  PasswordHash – bcrypt hash; the plaintext is never stored.
//  CreatedAt    – timestamp of registration.
type User struct {
    ID           uint64    // users.id
    Username     string    // users.username
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    CreatedAt    time.Time // users.created_at
}

// Session models an entry in the `sessions` table.  The browser holds a
// signed token naming the session ID; revocation and expiry live here.
//
// Fields:
//  ID        – random UUID, the token's sid claim.
//  UserID    – owner of the session.
//  ExpiresAt – end of the session's lifetime.
//  RevokedAt – when the session was logged out (nil while active).
//  CreatedAt – timestamp of login.
type Session struct {
    ID        string     // sessions.id
    UserID    uint64     // sessions.user_id
    ExpiresAt time.Time  // sessions.expires_at
    RevokedAt *time.Time // sessions.revoked_at (nullable)
    CreatedAt time.Time  // sessions.created_at
}

package entity

import "time"

// User represents an account row in the `users` table.
// A local user authenticates with a password and never carries an SsoSource.
type User struct {
	ID                int64     `db:"id"`
	Email             string    `db:"email"`
	Username          string    `db:"username"`
	Local             bool      `db:"local"`
	SsoSource         string    `db:"sso_source"`
	Developer         bool      `db:"developer"`
	Admin             bool      `db:"admin"`
	Suspended         bool      `db:"suspended"`
	SuspendedManually bool      `db:"suspended_manually"`
	SuspendedReason   *string   `db:"suspended_reason"`
	PasswordHash      *string   `db:"password_hash"`
	SessionVersion    int64     `db:"session_version"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// BumpUpdatedAt marks the row as changed now.
func (u *User) BumpUpdatedAt() {
	u.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	if u.SuspendedReason != nil {
		r := *u.SuspendedReason
		c.SuspendedReason = &r
	}
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	return &c
}

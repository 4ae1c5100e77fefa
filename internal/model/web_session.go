package model

import "time"

// WebSession is a logged-in browser session; only the HMAC of the cookie token is stored.
type WebSession struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateWebSessionParams struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

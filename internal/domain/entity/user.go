package entity

import "time"

// User registered account. Password holds a bcrypt hash.
type User struct {
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRecord username/password pair as supplied by an import source
type UserRecord struct {
	Username string
	Password string
}

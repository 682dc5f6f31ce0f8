package model

// User is a credit account keyed by an opaque identifier.
type User struct {
	ID      string `json:"id"`
	Credits int    `json:"credits"`
}

// AnonymousUserID is the bucket used when no user identifier is supplied.
const AnonymousUserID = "anon"

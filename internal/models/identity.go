package models

// Identity is the caller established by the connection's own authentication.
// Client-supplied ids are never trusted in its place.
type Identity struct {
	UserID uint
	Name   string
	Email  string
}

package model

// Identity is the authenticated caller resolved by the authorization gate.
// The service never creates or mutates identities; it only reads the ID to
// attribute ownership and reservations.
//
// Fields:
//  ID    – opaque identity reference (JWT subject).
//  Name  – optional display name claim.
//  Email – optional email claim.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// Package model holds the persistence-agnostic entities shared by every
// component of the chat core: users, conversations, messages, and the
// runtime-only session and typing types.
package model

// User is the stable identity record the core reads and partially mutates
// (isOnline only). Credential issuance and profile CRUD are owned elsewhere.
type User struct {
	ID           string
	Username     string
	EmailHash    string
	PasswordHash string
	IsOnline     bool
}

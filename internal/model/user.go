package model

import "time"

// User represents an account record as stored in the `users` table.
// PasswordHash is a bcrypt hash; the plain password is never kept.
// Users created through a social login carry a random password hash
// nobody knows, so they can only sign in through their provider.
type User struct {
	ID           string    // users.id (uuid)
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Role represents a row in the `roles` table. Names are unique.
type Role struct {
	ID          string    // roles.id (uuid)
	Name        string    // roles.name
	Description string    // roles.description (empty when NULL)
	CreatedAt   time.Time // roles.created_at
}

// AdminRole is the distinguished role that gates role management.
const AdminRole = "admin"

// SocialAccount links a provider-scoped subject to exactly one user.
// The (Provider, Subject) pair is unique in `social_accounts`.
type SocialAccount struct {
	ID        string    // social_accounts.id
	UserID    string    // social_accounts.user_id
	Provider  string    // social_accounts.provider (e.g. yandex, vk)
	Subject   string    // social_accounts.subject
	CreatedAt time.Time // social_accounts.created_at
}

// LoginHistory is an append-only record of a successful login.
type LoginHistory struct {
	ID         string    // login_history.id
	UserID     string    // login_history.user_id
	UserAgent  string    // login_history.user_agent
	DeviceType string    // login_history.device_type (pc, tablet, mobile, other)
	CreatedAt  time.Time // login_history.created_at
}

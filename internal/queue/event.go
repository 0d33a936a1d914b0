// Package queue defines the login audit messages exchanged over RabbitMQ
// and the consumer that persists them.
package queue

// LoginQueue is the default durable queue login events are routed to.
const LoginQueue = "auth.login"

// LoginEvent is published after every successful password or OAuth login.
// It carries enough context for audit consumers to log or alert without
// reading the credential store.
type LoginEvent struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Method     string `json:"method"` // password | oauth:<provider>
	UserAgent  string `json:"user_agent"`
	DeviceType string `json:"device_type"`
	LoggedInAt string `json:"logged_in_at"` // RFC3339, UTC
}

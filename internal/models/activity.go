package models

import "time"

type ActivityKind string

const (
	ActivityRegister      ActivityKind = "register"
	ActivityLogin         ActivityKind = "login"
	ActivityLogout        ActivityKind = "logout"
	ActivityVerifyEmail   ActivityKind = "verify_email"
	ActivityPasswordReset ActivityKind = "password_reset"
	ActivityTokenRefresh  ActivityKind = "token_refresh"
)

// Activity is one row of the auth activity ledger.
type Activity struct {
	ID        int64        `json:"id"`
	UserID    string       `json:"userId"`
	Kind      ActivityKind `json:"kind"`
	IPAddress string       `json:"ipAddress,omitempty"`
	UserAgent string       `json:"userAgent,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

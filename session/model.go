package session

// Session is one local login on one tenant.
type Session struct {
	SessionID  string
	IdentityID string
	TenantID   string
	ClientIP   string

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the absolute lifetime has passed at unix second now.
func (s *Session) Expired(now int64) bool {
	return s.ExpiresAt > 0 && now >= s.ExpiresAt
}

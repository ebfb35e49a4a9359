package session

// State describes where a session is in its lifecycle. Only
// Unauthenticated and Valid are steady states; Refreshing exists while
// a token renewal is in flight and Invalid is a transient sink that
// immediately clears the session.
type State string

const (
	StateUnauthenticated State = "Unauthenticated"
	StateValid           State = "Valid"
	StateRefreshing      State = "Refreshing"
	StateInvalid         State = "Invalid"
)

// Session bundles the identity and token pair for one logged-in user.
// The process holds at most one Session at a time. Tokens are replaced
// wholesale on refresh, never partially, and are always both present or
// both absent.
type Session struct {
	UserID       string // Stable identifier, immutable for the session's lifetime
	AccessToken  string // Short-lived, presented on every authorized call
	RefreshToken string // Longer-lived, exchanged for a new access token
	Role         string // e.g. "employee" or "boss"; carried, never interpreted
	State        State
}

// HasTokens reports whether the session carries a complete token pair.
func (s Session) HasTokens() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

package entity

// SessionStatus combines the durable authenticated flag with the transient
// session flag. Both must hold for the session to be usable.
type SessionStatus struct {
	Authenticated bool
	SessionActive bool
	CurrentUser   string
}

// Active reports a fully usable session.
func (s SessionStatus) Active() bool {
	return s.Authenticated && s.SessionActive && s.CurrentUser != ""
}

// Expired reports a login that survived a restart while the transient flag did not.
func (s SessionStatus) Expired() bool {
	return s.Authenticated && !s.SessionActive
}

// LoggedOut reports that no login is recorded at all.
func (s SessionStatus) LoggedOut() bool {
	return !s.Authenticated
}

package domain

// Identity is what the external identity provider hands the engine. Every
// engine operation requires Verified to be true.
type Identity struct {
	UserID   string
	Verified bool
}

// Check gates an engine operation on the identity preconditions.
func (id Identity) Check() error {
	if id.UserID == "" {
		return ErrUnauthenticated
	}
	if !id.Verified {
		return ErrUnverified
	}
	return nil
}

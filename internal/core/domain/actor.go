package domain

// Actor is the authenticated caller on whose behalf the engine acts.
type Actor struct {
	Username string
	Admin    bool
}

// Scope returns the ownership filter every lookup made for this actor applies.
func (a Actor) Scope() OwnerScope {
	if a.Admin {
		return Unscoped()
	}
	return OwnedBy(a.Username)
}

// OwnerScope restricts account resolution to one owner. A nil Owner is unscoped.
type OwnerScope struct {
	Owner *string
}

// Unscoped matches every account.
func Unscoped() OwnerScope {
	return OwnerScope{}
}

// OwnedBy matches only accounts owned by username.
func OwnedBy(username string) OwnerScope {
	return OwnerScope{Owner: &username}
}

// IsUnscoped reports whether the scope matches every account.
func (s OwnerScope) IsUnscoped() bool {
	return s.Owner == nil
}

// Allows reports whether the account is visible under this scope.
func (s OwnerScope) Allows(a *Account) bool {
	if s.Owner == nil {
		return true
	}
	return a.Owner != nil && *a.Owner == *s.Owner
}

// Arg is the scope as a nullable query argument.
func (s OwnerScope) Arg() any {
	if s.Owner == nil {
		return nil
	}
	return *s.Owner
}

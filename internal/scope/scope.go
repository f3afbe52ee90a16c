package scope

// CallerScope identifies who is asking. It is passed explicitly into every
// core operation instead of being read from ambient request context, so the
// ownership rules are visible at each call site.
type CallerScope struct {
	OrganizationID string
	ActorID        string
	// Privileged callers (platform super-admins, internal jobs) skip
	// organization ownership checks entirely.
	Privileged bool
}

// System returns the scope used by internal consumers (event listeners,
// sweepers) acting on behalf of a single organization.
func System(organizationID string) CallerScope {
	return CallerScope{OrganizationID: organizationID, ActorID: "system"}
}

// Admin returns a privileged scope for platform-level tooling.
func Admin(actorID string) CallerScope {
	return CallerScope{ActorID: actorID, Privileged: true}
}

// CanAccess reports whether the caller may touch a resource owned by
// resourceOrg.
func (s CallerScope) CanAccess(resourceOrg string) bool {
	return s.Privileged || s.OrganizationID == resourceOrg
}

// Actor returns the actor id as a nullable reference for ledger rows.
func (s CallerScope) Actor() *string {
	if s.ActorID == "" {
		return nil
	}
	a := s.ActorID
	return &a
}

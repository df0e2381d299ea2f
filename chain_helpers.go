package intercept

const (
	// Recommended priorities for common layering patterns. Higher numbers win.
	ScopePrioritySystem = 100
	ScopePriorityTenant = 200
	ScopePriorityOrg    = 300
	ScopePriorityTeam   = 400
	ScopePriorityUser   = 500
)

// ChainSystemTenantOrgTeamUser assembles the canonical five-scope stack
// (system → tenant → org → team → user) and installs it onto target, user
// scope winning.
func ChainSystemTenantOrgTeamUser(target *Object, system, tenant, org, team, user map[string]any, opts ...Option) ([]*Layer, error) {
	bindings := []Binding{
		NewBinding(NewScope("user", ScopePriorityUser, WithScopeLabel("User")), user),
		NewBinding(NewScope("team", ScopePriorityTeam, WithScopeLabel("Team")), team),
		NewBinding(NewScope("org", ScopePriorityOrg, WithScopeLabel("Organization")), org),
		NewBinding(NewScope("tenant", ScopePriorityTenant, WithScopeLabel("Tenant")), tenant),
		NewBinding(NewScope("system", ScopePrioritySystem, WithScopeLabel("System Defaults")), system),
	}
	stack, err := NewStack(bindings...)
	if err != nil {
		return nil, err
	}
	return stack.Install(target, opts...)
}

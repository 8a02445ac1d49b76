// Package authority implements the membership and role authority for one
// institution. It is the single source of truth for "does address X hold
// capability role R" and exclusively owns role, member and department state.
package authority

import (
	"fmt"
	"sync"
	"time"

	"github.com/instidoc/institution-registry-backend/events"
	"github.com/instidoc/institution-registry-backend/interfaces"
)

// CapabilityGrant assigns a capability role to an address at bootstrap.
type CapabilityGrant struct {
	Role   interfaces.RoleID
	Holder interfaces.Address
}

// Bootstrap is the one-shot deployment wiring applied inside NewRegistry.
// The admin receives the administrator and role-creator capabilities;
// Grants carries the cross-component wiring (workflow engine, updater,
// minter). There is no deployer capability left behind afterwards: the
// grant-then-renounce window is collapsed into the constructor and is not
// observable.
type Bootstrap struct {
	Admin  interfaces.Address
	Grants []CapabilityGrant
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, used in tests to advance deadlines.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is the authority aggregate. All access goes through its methods;
// there is no ambient global state.
type Registry struct {
	mu          sync.RWMutex
	institution string
	now         func() time.Time

	roles     map[interfaces.RoleID]*interfaces.Role
	roleOrder []interfaces.RoleID

	members     map[interfaces.Address]*interfaces.Member
	memberOrder []interfaces.Address

	departments map[string]*interfaces.Department
	deptOrder   []string

	// grants is the capability table consulted by HasRole. It is tracked
	// separately from Member.Roles: deactivating a role blocks future
	// HasRole checks but leaves members' recorded role lists stale.
	grants map[interfaces.RoleID]map[interfaces.Address]bool

	log *events.Log
}

var _ interfaces.AuthorityRegistry = (*Registry)(nil)

// NewRegistry creates the authority for an institution and applies the
// bootstrap wiring atomically before returning.
func NewRegistry(institution string, boot Bootstrap, opts ...Option) *Registry {
	r := &Registry{
		institution: institution,
		now:         time.Now,
		roles:       make(map[interfaces.RoleID]*interfaces.Role),
		members:     make(map[interfaces.Address]*interfaces.Member),
		departments: make(map[string]*interfaces.Department),
		grants:      make(map[interfaces.RoleID]map[interfaces.Address]bool),
		log:         events.NewLog(),
	}
	for _, opt := range opts {
		opt(r)
	}

	now := r.now()
	wellKnown := []struct {
		id   interfaces.RoleID
		name string
	}{
		{interfaces.AdminRole, "INSTITUTION_ADMIN_ROLE"},
		{interfaces.RoleCreatorRole, "ROLE_CREATOR_ROLE"},
		{interfaces.WorkflowAdminRole, "WORKFLOW_ADMIN_ROLE"},
		{interfaces.CreatorRole, "DOCUMENT_CREATOR_ROLE"},
		{interfaces.MinterRole, "CERTIFICATE_MINTER_ROLE"},
		{interfaces.UpdaterRole, "STATE_UPDATER_ROLE"},
		{interfaces.WorkflowRole, "WORKFLOW_ENGINE_ROLE"},
	}
	for _, wk := range wellKnown {
		r.roles[wk.id] = &interfaces.Role{
			ID:        wk.id,
			Name:      wk.name,
			Active:    true,
			CreatedAt: now,
		}
		r.roleOrder = append(r.roleOrder, wk.id)
	}

	if !boot.Admin.IsZero() {
		r.grant(boot.Admin, interfaces.AdminRole)
		r.grant(boot.Admin, interfaces.RoleCreatorRole)
	}
	for _, g := range boot.Grants {
		r.grant(g.Holder, g.Role)
	}

	return r
}

func (r *Registry) grant(addr interfaces.Address, role interfaces.RoleID) {
	if r.grants[role] == nil {
		r.grants[role] = make(map[interfaces.Address]bool)
	}
	r.grants[role][addr] = true
}

// HasRole reports whether addr currently holds the role. A deactivated role
// fails this check for every holder, even those granted before deactivation.
func (r *Registry) HasRole(addr interfaces.Address, role interfaces.RoleID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasRoleLocked(addr, role)
}

func (r *Registry) hasRoleLocked(addr interfaces.Address, role interfaces.RoleID) bool {
	entry, ok := r.roles[role]
	if !ok || !entry.Active {
		return false
	}
	return r.grants[role][addr]
}

// IsActiveMember reports whether addr is a currently active member.
func (r *Registry) IsActiveMember(addr interfaces.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[addr]
	return ok && m.Active
}

// CreateRole registers a new custom role. Restricted to role-creator
// capability holders. The identifier is derived from the name, the creation
// time and the creator and must not collide with any existing entry,
// active or not.
func (r *Registry) CreateRole(caller interfaces.Address, name, description string) (interfaces.RoleID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, interfaces.RoleCreatorRole) {
		return interfaces.RoleID{}, fmt.Errorf("%w: role creator", interfaces.ErrUnauthorized)
	}
	if name == "" {
		return interfaces.RoleID{}, fmt.Errorf("%w: empty role name", interfaces.ErrPrecondition)
	}

	now := r.now()
	id := interfaces.DeriveRoleID(name, now, caller)
	if _, exists := r.roles[id]; exists {
		return interfaces.RoleID{}, fmt.Errorf("%w: role id collision for %q", interfaces.ErrPrecondition, name)
	}

	r.roles[id] = &interfaces.Role{
		ID:          id,
		Name:        name,
		Description: description,
		Active:      true,
		Creator:     caller,
		CreatedAt:   now,
	}
	r.roleOrder = append(r.roleOrder, id)

	r.log.Emit("role_created", now, map[string]string{
		"role":    id.String(),
		"name":    name,
		"creator": caller.String(),
	})
	return id, nil
}

// DeactivateRole deactivates a custom role. Restricted to the administrator
// capability; the two system roles can never be deactivated. Deactivation
// does not revoke the role from members' recorded lists, it only blocks
// future HasRole checks.
func (r *Registry) DeactivateRole(caller interfaces.Address, id interfaces.RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: administrator", interfaces.ErrUnauthorized)
	}
	if id == interfaces.AdminRole || id == interfaces.RoleCreatorRole {
		return fmt.Errorf("%w: cannot deactivate system role", interfaces.ErrPrecondition)
	}

	entry, ok := r.roles[id]
	if !ok {
		return interfaces.ErrUnknownRole
	}
	if !entry.Active {
		return fmt.Errorf("%w: role already inactive", interfaces.ErrPrecondition)
	}

	entry.Active = false
	r.log.Emit("role_deactivated", r.now(), map[string]string{"role": id.String()})
	return nil
}

// AddMember registers a new active member and atomically grants every
// listed role. Restricted to the administrator capability. Fails without
// partial mutation if the address is already an active member or any listed
// role is inactive.
func (r *Registry) AddMember(caller, addr interfaces.Address, name, department string, roles []interfaces.RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: administrator", interfaces.ErrUnauthorized)
	}
	if existing, ok := r.members[addr]; ok && existing.Active {
		return fmt.Errorf("%w: member %s already active", interfaces.ErrPrecondition, addr)
	}
	for _, role := range roles {
		entry, ok := r.roles[role]
		if !ok || !entry.Active {
			return fmt.Errorf("%w: role %s is not active", interfaces.ErrPrecondition, role)
		}
	}

	var dept *interfaces.Department
	if department != "" {
		d, ok := r.departments[department]
		if !ok || !d.Active {
			return fmt.Errorf("%w: %q", interfaces.ErrUnknownDepartment, department)
		}
		dept = d
	}

	now := r.now()
	member := &interfaces.Member{
		Address:    addr,
		Name:       name,
		Department: department,
		Active:     true,
		JoinedAt:   now,
		Roles:      append([]interfaces.RoleID(nil), roles...),
	}
	r.members[addr] = member
	r.memberOrder = append(r.memberOrder, addr)

	for _, role := range roles {
		r.grant(addr, role)
	}
	if dept != nil {
		dept.Members = append(dept.Members, addr)
	}

	r.log.Emit("member_added", now, map[string]string{
		"member":     addr.String(),
		"name":       name,
		"department": department,
	})
	return nil
}

// CreateDepartment registers a new department. Restricted to the
// administrator capability; fails on a duplicate active name.
func (r *Registry) CreateDepartment(caller interfaces.Address, name string, head interfaces.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: administrator", interfaces.ErrUnauthorized)
	}
	if name == "" {
		return fmt.Errorf("%w: empty department name", interfaces.ErrPrecondition)
	}
	if existing, ok := r.departments[name]; ok && existing.Active {
		return fmt.Errorf("%w: department %q already exists", interfaces.ErrPrecondition, name)
	}

	r.departments[name] = &interfaces.Department{
		Name:   name,
		Head:   head,
		Active: true,
	}
	r.deptOrder = append(r.deptOrder, name)

	r.log.Emit("department_created", r.now(), map[string]string{
		"department": name,
		"head":       head.String(),
	})
	return nil
}

// GrantMemberRole grants an active role to an existing member. Restricted
// to the administrator capability. Granting an already-held role is a no-op.
func (r *Registry) GrantMemberRole(caller, addr interfaces.Address, role interfaces.RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: administrator", interfaces.ErrUnauthorized)
	}
	entry, ok := r.roles[role]
	if !ok || !entry.Active {
		return fmt.Errorf("%w: role %s is not active", interfaces.ErrPrecondition, role)
	}
	member, ok := r.members[addr]
	if !ok {
		return interfaces.ErrUnknownMember
	}

	if r.grants[role][addr] {
		return nil
	}

	r.grant(addr, role)
	member.Roles = append(member.Roles, role)

	r.log.Emit("role_granted", r.now(), map[string]string{
		"member": addr.String(),
		"role":   role.String(),
	})
	return nil
}

// RevokeMemberRole revokes a role from a member. Restricted to the
// administrator capability. The role is removed from the member's assigned
// list via swap-and-pop; the relative order of the remaining roles is not
// preserved.
func (r *Registry) RevokeMemberRole(caller, addr interfaces.Address, role interfaces.RoleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, interfaces.AdminRole) {
		return fmt.Errorf("%w: administrator", interfaces.ErrUnauthorized)
	}
	entry, ok := r.roles[role]
	if !ok || !entry.Active {
		return fmt.Errorf("%w: role %s is not active", interfaces.ErrPrecondition, role)
	}
	member, ok := r.members[addr]
	if !ok {
		return interfaces.ErrUnknownMember
	}
	if !r.grants[role][addr] {
		return fmt.Errorf("%w: member does not hold role", interfaces.ErrPrecondition)
	}

	delete(r.grants[role], addr)
	for i, held := range member.Roles {
		if held == role {
			member.Roles[i] = member.Roles[len(member.Roles)-1]
			member.Roles = member.Roles[:len(member.Roles)-1]
			break
		}
	}

	r.log.Emit("role_revoked", r.now(), map[string]string{
		"member": addr.String(),
		"role":   role.String(),
	})
	return nil
}

// Role returns the catalog entry for a role id, active or not.
func (r *Registry) Role(id interfaces.RoleID) (interfaces.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.roles[id]
	if !ok {
		return interfaces.Role{}, interfaces.ErrUnknownRole
	}
	return *entry, nil
}

// AllRoles returns every role in catalog order, including inactive ones.
func (r *Registry) AllRoles() []interfaces.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.Role, 0, len(r.roleOrder))
	for _, id := range r.roleOrder {
		out = append(out, *r.roles[id])
	}
	return out
}

// ActiveRoles returns only the currently active roles in catalog order.
func (r *Registry) ActiveRoles() []interfaces.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []interfaces.Role
	for _, id := range r.roleOrder {
		if r.roles[id].Active {
			out = append(out, *r.roles[id])
		}
	}
	return out
}

// RolesByCreator returns roles created by the given address.
func (r *Registry) RolesByCreator(creator interfaces.Address) []interfaces.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []interfaces.Role
	for _, id := range r.roleOrder {
		if r.roles[id].Creator == creator {
			out = append(out, *r.roles[id])
		}
	}
	return out
}

// Member returns the membership record for an address.
func (r *Registry) Member(addr interfaces.Address) (interfaces.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[addr]
	if !ok {
		return interfaces.Member{}, interfaces.ErrUnknownMember
	}
	out := *m
	out.Roles = append([]interfaces.RoleID(nil), m.Roles...)
	return out, nil
}

// MemberRoles returns the member's recorded role list. Note this list may
// include roles that have since been deactivated; HasRole is authoritative.
func (r *Registry) MemberRoles(addr interfaces.Address) ([]interfaces.RoleID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[addr]
	if !ok {
		return nil, interfaces.ErrUnknownMember
	}
	return append([]interfaces.RoleID(nil), m.Roles...), nil
}

// Members returns all membership records in join order.
func (r *Registry) Members() []interfaces.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.Member, 0, len(r.memberOrder))
	for _, addr := range r.memberOrder {
		m := *r.members[addr]
		m.Roles = append([]interfaces.RoleID(nil), r.members[addr].Roles...)
		out = append(out, m)
	}
	return out
}

// Department returns the department record for a name.
func (r *Registry) Department(name string) (interfaces.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.departments[name]
	if !ok {
		return interfaces.Department{}, interfaces.ErrUnknownDepartment
	}
	out := *d
	out.Members = append([]interfaces.Address(nil), d.Members...)
	return out, nil
}

// DepartmentMembers returns the append-only member list of a department.
func (r *Registry) DepartmentMembers(name string) ([]interfaces.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.departments[name]
	if !ok {
		return nil, interfaces.ErrUnknownDepartment
	}
	return append([]interfaces.Address(nil), d.Members...), nil
}

// Departments returns all department records in creation order.
func (r *Registry) Departments() []interfaces.Department {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.Department, 0, len(r.deptOrder))
	for _, name := range r.deptOrder {
		d := *r.departments[name]
		d.Members = append([]interfaces.Address(nil), r.departments[name].Members...)
		out = append(out, d)
	}
	return out
}

// Events returns the emitted event log.
func (r *Registry) Events() []events.Event {
	return r.log.Events()
}

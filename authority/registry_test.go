package authority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/instidoc/institution-registry-backend/interfaces"
)

func mustAddr(t *testing.T, hexstr string) interfaces.Address {
	t.Helper()
	addr, err := interfaces.NewAddressFromHex(hexstr)
	require.NoError(t, err)
	return addr
}

func newTestRegistry(t *testing.T) (*Registry, interfaces.Address) {
	t.Helper()
	admin := mustAddr(t, "00112233445566778899aabbccddeeff00112233")
	return NewRegistry("Test University", Bootstrap{Admin: admin}), admin
}

func TestBootstrapGrantsAdminCapabilities(t *testing.T) {
	reg, admin := newTestRegistry(t)

	require.True(t, reg.HasRole(admin, interfaces.AdminRole))
	require.True(t, reg.HasRole(admin, interfaces.RoleCreatorRole))

	outsider := mustAddr(t, "1111111111111111111111111111111111111111")
	require.False(t, reg.HasRole(outsider, interfaces.AdminRole))
}

func TestBootstrapAppliesGrants(t *testing.T) {
	admin := mustAddr(t, "00112233445566778899aabbccddeeff00112233")
	engine := mustAddr(t, "2222222222222222222222222222222222222222")

	reg := NewRegistry("Test University", Bootstrap{
		Admin: admin,
		Grants: []CapabilityGrant{
			{Role: interfaces.WorkflowRole, Holder: engine},
			{Role: interfaces.UpdaterRole, Holder: engine},
		},
	})

	require.True(t, reg.HasRole(engine, interfaces.WorkflowRole))
	require.True(t, reg.HasRole(engine, interfaces.UpdaterRole))
	require.False(t, reg.HasRole(engine, interfaces.AdminRole))
}

func TestCreateRole(t *testing.T) {
	reg, admin := newTestRegistry(t)

	id, err := reg.CreateRole(admin, "REVIEWER", "Reviews documents")
	require.NoError(t, err)
	require.False(t, id.IsZero())

	role, err := reg.Role(id)
	require.NoError(t, err)
	require.Equal(t, "REVIEWER", role.Name)
	require.Equal(t, admin, role.Creator)
	require.True(t, role.Active)

	// A second role with the same name gets a distinct id
	id2, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)
	require.NotEqual(t, id, id2)
}

func TestCreateRoleUnauthorized(t *testing.T) {
	reg, _ := newTestRegistry(t)

	outsider := mustAddr(t, "1111111111111111111111111111111111111111")
	_, err := reg.CreateRole(outsider, "REVIEWER", "")
	require.ErrorIs(t, err, interfaces.ErrUnauthorized)
}

func TestCreateRoleEmptyName(t *testing.T) {
	reg, admin := newTestRegistry(t)

	_, err := reg.CreateRole(admin, "", "")
	require.ErrorIs(t, err, interfaces.ErrPrecondition)
}

func TestDeactivateRoleBlocksHasRole(t *testing.T) {
	reg, admin := newTestRegistry(t)

	id, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, reg.AddMember(admin, member, "Alice", "", []interfaces.RoleID{id}))
	require.True(t, reg.HasRole(member, id))

	require.NoError(t, reg.DeactivateRole(admin, id))
	require.False(t, reg.HasRole(member, id))

	// The member's recorded role list still carries the stale entry
	roles, err := reg.MemberRoles(member)
	require.NoError(t, err)
	require.Contains(t, roles, id)

	// Re-deactivation is rejected
	require.ErrorIs(t, reg.DeactivateRole(admin, id), interfaces.ErrPrecondition)
}

func TestDeactivateSystemRoleRejected(t *testing.T) {
	reg, admin := newTestRegistry(t)

	require.ErrorIs(t, reg.DeactivateRole(admin, interfaces.AdminRole), interfaces.ErrPrecondition)
	require.ErrorIs(t, reg.DeactivateRole(admin, interfaces.RoleCreatorRole), interfaces.ErrPrecondition)
	require.True(t, reg.HasRole(admin, interfaces.AdminRole))
}

func TestAddMemberGrantsRolesAtomically(t *testing.T) {
	reg, admin := newTestRegistry(t)

	active, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)
	inactive, err := reg.CreateRole(admin, "RETIRED", "")
	require.NoError(t, err)
	require.NoError(t, reg.DeactivateRole(admin, inactive))

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	err = reg.AddMember(admin, member, "Alice", "", []interfaces.RoleID{active, inactive})
	require.ErrorIs(t, err, interfaces.ErrPrecondition)

	// No partial mutation: the member was not registered and holds nothing
	require.False(t, reg.IsActiveMember(member))
	require.False(t, reg.HasRole(member, active))

	require.NoError(t, reg.AddMember(admin, member, "Alice", "", []interfaces.RoleID{active}))
	require.True(t, reg.IsActiveMember(member))
	require.True(t, reg.HasRole(member, active))
}

func TestAddMemberDuplicateRejected(t *testing.T) {
	reg, admin := newTestRegistry(t)

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, reg.AddMember(admin, member, "Alice", "", nil))
	require.ErrorIs(t, reg.AddMember(admin, member, "Alice again", "", nil), interfaces.ErrPrecondition)
}

func TestAddMemberUnknownDepartment(t *testing.T) {
	reg, admin := newTestRegistry(t)

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	err := reg.AddMember(admin, member, "Alice", "Legal", nil)
	require.ErrorIs(t, err, interfaces.ErrUnknownDepartment)
}

func TestDepartmentFlow(t *testing.T) {
	reg, admin := newTestRegistry(t)

	head := mustAddr(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, reg.CreateDepartment(admin, "Legal", head))
	require.ErrorIs(t, reg.CreateDepartment(admin, "Legal", head), interfaces.ErrPrecondition)

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, reg.AddMember(admin, member, "Alice", "Legal", nil))

	dept, err := reg.Department("Legal")
	require.NoError(t, err)
	require.Equal(t, head, dept.Head)
	require.Equal(t, []interfaces.Address{member}, dept.Members)

	members, err := reg.DepartmentMembers("Legal")
	require.NoError(t, err)
	require.Equal(t, []interfaces.Address{member}, members)

	_, err = reg.Department("Finance")
	require.ErrorIs(t, err, interfaces.ErrUnknownDepartment)
}

func TestGrantAndRevokeMemberRole(t *testing.T) {
	reg, admin := newTestRegistry(t)

	id, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, reg.AddMember(admin, member, "Alice", "", nil))

	require.NoError(t, reg.GrantMemberRole(admin, member, id))
	require.True(t, reg.HasRole(member, id))

	// Re-granting a held role is a no-op, not a duplicate list entry
	require.NoError(t, reg.GrantMemberRole(admin, member, id))
	roles, err := reg.MemberRoles(member)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	require.NoError(t, reg.RevokeMemberRole(admin, member, id))
	require.False(t, reg.HasRole(member, id))
	roles, err = reg.MemberRoles(member)
	require.NoError(t, err)
	require.Empty(t, roles)

	// Revoking a role the member does not hold fails
	require.ErrorIs(t, reg.RevokeMemberRole(admin, member, id), interfaces.ErrPrecondition)
}

func TestRevokeMemberRoleReordersRemaining(t *testing.T) {
	reg, admin := newTestRegistry(t)

	first, err := reg.CreateRole(admin, "FIRST", "")
	require.NoError(t, err)
	second, err := reg.CreateRole(admin, "SECOND", "")
	require.NoError(t, err)
	third, err := reg.CreateRole(admin, "THIRD", "")
	require.NoError(t, err)

	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, reg.AddMember(admin, member, "Alice", "", []interfaces.RoleID{first, second, third}))

	// Revocation swaps the last role into the freed slot; the relative
	// order of the remaining roles is not preserved
	require.NoError(t, reg.RevokeMemberRole(admin, member, first))

	roles, err := reg.MemberRoles(member)
	require.NoError(t, err)
	require.Equal(t, []interfaces.RoleID{third, second}, roles)

	require.False(t, reg.HasRole(member, first))
	require.True(t, reg.HasRole(member, second))
	require.True(t, reg.HasRole(member, third))
}

func TestRoleQueries(t *testing.T) {
	reg, admin := newTestRegistry(t)

	id, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)
	require.NoError(t, reg.DeactivateRole(admin, id))

	all := reg.AllRoles()
	active := reg.ActiveRoles()
	require.Len(t, all, len(active)+1)

	byCreator := reg.RolesByCreator(admin)
	require.Len(t, byCreator, 1)
	require.Equal(t, id, byCreator[0].ID)
}

func TestMutationsEmitEvents(t *testing.T) {
	reg, admin := newTestRegistry(t)

	id, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)
	member := mustAddr(t, "ffeeddccbbaa99887766554433221100ffeeddcc")
	require.NoError(t, reg.AddMember(admin, member, "Alice", "", []interfaces.RoleID{id}))

	evs := reg.Events()
	require.Len(t, evs, 2)
	require.Equal(t, "role_created", evs[0].Type)
	require.Equal(t, "member_added", evs[1].Type)
	require.Equal(t, member.String(), evs[1].Attributes["member"])

	// Failed operations leave no trace in the log
	outsider := mustAddr(t, "1111111111111111111111111111111111111111")
	_, err = reg.CreateRole(outsider, "INTRUDER", "")
	require.Error(t, err)
	require.Len(t, reg.Events(), 2)
}

func TestWithClock(t *testing.T) {
	admin := mustAddr(t, "00112233445566778899aabbccddeeff00112233")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry("Test University", Bootstrap{Admin: admin}, WithClock(func() time.Time { return fixed }))

	id, err := reg.CreateRole(admin, "REVIEWER", "")
	require.NoError(t, err)

	role, err := reg.Role(id)
	require.NoError(t, err)
	require.Equal(t, fixed, role.CreatedAt)
	require.Equal(t, interfaces.DeriveRoleID("REVIEWER", fixed, admin), id)
}

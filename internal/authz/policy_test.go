package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSupervisorMatchesAnyAttribute(t *testing.T) {
	require.True(t, IsSupervisor(Principal{BranchID: 3, Rol: "Encargado de sucursal"}))
	require.True(t, IsSupervisor(Principal{BranchID: 3, Nivel: "GERENCIA"}))
	require.True(t, IsSupervisor(Principal{BranchID: 3, Puesto: "admin general"}))
	require.False(t, IsSupervisor(Principal{BranchID: 3, Rol: "vendedor", Puesto: "caja"}))
}

func TestCanPerformSupervisorGates(t *testing.T) {
	seller := Principal{EmployeeID: 10, BranchID: 3, Rol: "vendedor"}
	supervisor := Principal{EmployeeID: 11, BranchID: 3, Rol: "encargado"}

	for _, op := range []Operation{OpCreateCount, OpReviewCount, OpCloseCount, OpCreateTask, OpResolveSuggestion} {
		require.False(t, CanPerform(seller, op), "seller must not perform %s", op)
		require.True(t, CanPerform(supervisor, op))
	}
	for _, op := range []Operation{OpEditCount, OpSubmitCount, OpCreateSuggestion} {
		require.True(t, CanPerform(seller, op))
		require.True(t, CanPerform(supervisor, op))
	}
}

func TestCanPerformRequiresBranch(t *testing.T) {
	unassigned := Principal{EmployeeID: 12, Rol: "encargado"}
	require.False(t, CanPerform(unassigned, OpCreateCount))
	require.False(t, CanPerform(unassigned, OpCreateSuggestion))
}

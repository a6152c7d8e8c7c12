package database

import (
	"context"
	"testing"

	"crm/internal/model"
	"crm/internal/repository"
	"crm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedRoles_Idempotent(t *testing.T) {
	db := testutil.NewDB(t)
	tm := repository.NewTransactionManager(db)
	roles := repository.NewRoleRepository(db)
	ctx := context.Background()

	require.NoError(t, SeedRoles(ctx, tm, roles, "Admin"))
	require.NoError(t, SeedRoles(ctx, tm, roles, "Admin"))

	var roleCount, permCount int64
	require.NoError(t, db.Model(&model.Role{}).Count(&roleCount).Error)
	require.NoError(t, db.Model(&model.Permission{}).Count(&permCount).Error)
	assert.Equal(t, int64(4), roleCount)
	assert.Equal(t, int64(len(Permissions)), permCount)

	admin, err := roles.GetPermissionsByRoleName(ctx, "Admin")
	require.NoError(t, err)
	assert.Len(t, admin, len(Permissions))

	sales, err := roles.GetPermissionsByRoleName(ctx, "Sales")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{PermQuotesView, PermQuotesEdit, PermQuotesApprove, PermApprovalsView}, sales)
}

func TestRolePermissions_OverrideRoleGetsEverything(t *testing.T) {
	perms := RolePermissions("Root")

	assert.Len(t, perms["Root"], len(Permissions))
	assert.NotContains(t, perms["Finance"], PermPricingManage)
	assert.Contains(t, perms["Manager"], PermPricingManage)
}

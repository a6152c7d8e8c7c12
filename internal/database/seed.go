package database

import (
	"context"
	"fmt"

	"crm/internal/model"
	"crm/internal/repository"

	"github.com/google/uuid"
)

// Permission codes checked by the HTTP layer.
const (
	PermQuotesView    = "quotes.view"
	PermQuotesEdit    = "quotes.edit"
	PermQuotesApprove = "quotes.approve"
	PermPricingManage = "pricing.manage"
	PermApprovalsView = "approvals.view"
	PermAuditView     = "audit.view"
	PermReportsView   = "reports.view"
)

// Permissions is the full permission catalog.
var Permissions = []model.Permission{
	{Code: PermQuotesView, Name: "View quotes", Group: "quotes"},
	{Code: PermQuotesEdit, Name: "Create and edit quotes", Group: "quotes"},
	{Code: PermQuotesApprove, Name: "Request and decide quote approvals", Group: "quotes"},
	{Code: PermPricingManage, Name: "Manage pricing rules", Group: "pricing"},
	{Code: PermApprovalsView, Name: "View pending approvals", Group: "approvals"},
	{Code: PermAuditView, Name: "View audit log", Group: "audit"},
	{Code: PermReportsView, Name: "View quote statistics", Group: "reports"},
}

// RolePermissions is the built-in role to permission mapping. overrideRole
// receives every permission.
func RolePermissions(overrideRole string) map[string][]string {
	all := make([]string, 0, len(Permissions))
	for _, p := range Permissions {
		all = append(all, p.Code)
	}
	return map[string][]string{
		overrideRole: all,
		"Sales":      {PermQuotesView, PermQuotesEdit, PermQuotesApprove, PermApprovalsView},
		"Manager":    {PermQuotesView, PermQuotesEdit, PermQuotesApprove, PermApprovalsView, PermPricingManage, PermAuditView, PermReportsView},
		"Finance":    {PermQuotesView, PermQuotesApprove, PermApprovalsView, PermAuditView, PermReportsView},
	}
}

// SeedRoles creates the permission catalog and the built-in roles. It is
// safe to run on every start.
func SeedRoles(ctx context.Context, tm repository.TransactionManager, roles repository.RoleRepository, overrideRole string) error {
	return tm.RunInTx(ctx, func(txCtx context.Context) error {
		permIDs := make(map[string]uuid.UUID, len(Permissions))
		for _, p := range Permissions {
			perm := p
			if err := roles.FindOrCreatePermission(txCtx, &perm); err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", p.Code, err)
			}
			permIDs[perm.Code] = perm.ID
		}

		for name, codes := range RolePermissions(overrideRole) {
			role := model.Role{Name: name, IsSystem: true}
			if err := roles.FindOrCreate(txCtx, &role); err != nil {
				return fmt.Errorf("failed to seed role %s: %w", name, err)
			}
			ids := make([]uuid.UUID, 0, len(codes))
			for _, code := range codes {
				ids = append(ids, permIDs[code])
			}
			if err := roles.AssociatePermissions(txCtx, role.ID, ids); err != nil {
				return fmt.Errorf("failed to assign permissions to %s: %w", name, err)
			}
		}
		return nil
	})
}

package repository

import (
	"context"
	"testing"

	"crm/internal/model"
	"crm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func freshSteps() []model.ApprovalStep {
	return []model.ApprovalStep{
		{Position: 0, Role: "Sales", Status: "Waiting"},
		{Position: 1, Role: "Manager", Status: "Waiting"},
		{Position: 2, Role: "Finance", Status: "Waiting"},
	}
}

func TestApprovalRepository_Lifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	tn := testutil.SeedTenant(t, db)
	quotes := NewQuoteRepository(db)
	repo := NewApprovalRepository(db)
	ctx := context.Background()

	q := newQuote(tn, "Q-1", &tn.Sales.ID)
	require.NoError(t, quotes.Create(ctx, q))

	_, err := repo.FindInstanceByQuote(ctx, q.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	inst := &model.ApprovalInstance{OrganizationID: tn.Org.ID, QuoteID: q.ID, Status: "Waiting"}
	require.NoError(t, repo.CreateInstance(ctx, inst))
	assert.Error(t, repo.CreateInstance(ctx, &model.ApprovalInstance{OrganizationID: tn.Org.ID, QuoteID: q.ID, Status: "Waiting"}),
		"one instance per quote")

	require.NoError(t, repo.ReplaceSteps(ctx, inst.ID, freshSteps()))
	require.NoError(t, repo.ReplaceSteps(ctx, inst.ID, freshSteps()))

	got, err := repo.FindInstanceByQuote(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, "Sales", got.Steps[0].Role)
	assert.Equal(t, "Finance", got.Steps[2].Role)

	got.Steps[0].Status = "Approved"
	got.Steps[0].ActedBy = &tn.Sales.ID
	require.NoError(t, repo.SaveSteps(ctx, got.Steps))
	require.NoError(t, repo.UpdateInstanceStatus(ctx, inst.ID, "Rejected"))

	got, err = repo.FindInstanceByQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rejected", got.Status)
	assert.Equal(t, "Approved", got.Steps[0].Status)
	assert.Equal(t, tn.Sales.ID, *got.Steps[0].ActedBy)

	step, owner, err := repo.FindStep(ctx, tn.Org.ID, got.Steps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Manager", step.Role)
	assert.Equal(t, q.ID, owner.QuoteID)
}

func TestApprovalRepository_ListPendingSteps(t *testing.T) {
	db := testutil.NewDB(t)
	tn := testutil.SeedTenant(t, db)
	quotes := NewQuoteRepository(db)
	repo := NewApprovalRepository(db)
	ctx := context.Background()

	for _, number := range []string{"Q-1", "Q-2"} {
		q := newQuote(tn, number, &tn.Sales.ID)
		require.NoError(t, quotes.Create(ctx, q))
		inst := &model.ApprovalInstance{OrganizationID: tn.Org.ID, QuoteID: q.ID, Status: "Waiting"}
		require.NoError(t, repo.CreateInstance(ctx, inst))
		steps := freshSteps()
		if number == "Q-2" {
			steps[1].Status = "Approved"
		}
		require.NoError(t, repo.ReplaceSteps(ctx, inst.ID, steps))
	}

	rows, total, err := repo.ListPendingSteps(ctx, tn.Org.ID, "Manager", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Q-1", rows[0].QuoteNumber)
	assert.Equal(t, model.QuoteStatusDraft, rows[0].QuoteStatus)
	assert.Equal(t, "Manager", rows[0].Role)

	rows, total, err = repo.ListPendingSteps(ctx, tn.Org.ID, "Finance", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)
}

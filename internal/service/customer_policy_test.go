package service

import (
	"context"
	"testing"

	"crm/internal/apperror"
	"crm/internal/model"
	"crm/internal/repository"
	"crm/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerPolicy_Resolve(t *testing.T) {
	db := testutil.NewDB(t)
	tn := testutil.SeedTenant(t, db)
	other := testutil.SeedTenant(t, db)
	policy := NewCustomerPolicy(repository.NewPartnerRepository(db))
	ctx := context.Background()

	t.Run("explicit customer", func(t *testing.T) {
		p, created, err := policy.Resolve(ctx, tn.Org.ID, &tn.Customer.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, tn.Customer.ID, p.ID)
	})

	t.Run("customer of another organization", func(t *testing.T) {
		_, _, err := policy.Resolve(ctx, tn.Org.ID, &other.Customer.ID)
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})

	t.Run("fallback to first partner", func(t *testing.T) {
		p, created, err := policy.Resolve(ctx, tn.Org.ID, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, tn.Customer.ID, p.ID)

		nilID := uuid.Nil
		p, _, err = policy.Resolve(ctx, tn.Org.ID, &nilID)
		require.NoError(t, err)
		assert.Equal(t, tn.Customer.ID, p.ID)
	})

	t.Run("placeholder when none exist", func(t *testing.T) {
		empty := model.Organization{Name: "Empty"}
		require.NoError(t, db.Create(&empty).Error)

		p, created, err := policy.Resolve(ctx, empty.ID, nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, model.DefaultCustomerName, p.Name)
		assert.Equal(t, model.PartnerTypeCustomer, p.Type)

		again, created, err := policy.Resolve(ctx, empty.ID, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, p.ID, again.ID)
	})
}

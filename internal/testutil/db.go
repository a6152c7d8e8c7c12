// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"crm/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
// The pool holds a single connection so transactions serialize.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// Tenant is a seeded organization with one user per role.
type Tenant struct {
	Org      model.Organization
	Sales    model.User
	Manager  model.User
	Finance  model.User
	Admin    model.User
	Customer model.Partner
}

// SeedTenant creates an organization, a VIP customer and four users.
func SeedTenant(t testing.TB, db *gorm.DB) Tenant {
	t.Helper()
	ctx := context.Background()
	tn := Tenant{Org: model.Organization{Name: "Acme " + uuid.NewString()[:8]}}
	require.NoError(t, db.WithContext(ctx).Create(&tn.Org).Error)

	mk := func(role string) model.User {
		u := model.User{
			OrganizationID: tn.Org.ID,
			Username:       role + "-" + uuid.NewString()[:8],
			Email:          uuid.NewString() + "@example.com",
			Role:           role,
			IsActive:       true,
		}
		require.NoError(t, db.WithContext(ctx).Create(&u).Error)
		return u
	}
	tn.Sales = mk("Sales")
	tn.Manager = mk("Manager")
	tn.Finance = mk("Finance")
	tn.Admin = mk("Admin")

	tn.Customer = model.Partner{OrganizationID: tn.Org.ID, Name: "Globex", Type: model.PartnerTypeCustomer, Group: "VIP"}
	require.NoError(t, db.WithContext(ctx).Create(&tn.Customer).Error)
	return tn
}

// Product inserts a product in the tenant's organization.
func (tn Tenant) Product(t testing.TB, db *gorm.DB, name, category string, price string) model.Product {
	t.Helper()
	p := model.Product{
		OrganizationID: tn.Org.ID,
		SKU:            name,
		Name:           name,
		Category:       category,
		Price:          decimal.RequireFromString(price),
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Rule inserts a pricing rule in the tenant's organization.
func (tn Tenant) Rule(t testing.TB, db *gorm.DB, kind, target, percent string) model.PricingRule {
	t.Helper()
	r := model.PricingRule{
		OrganizationID: tn.Org.ID,
		Name:           kind + " " + target,
		Kind:           kind,
		Target:         target,
		Percent:        decimal.RequireFromString(percent),
	}
	require.NoError(t, db.Create(&r).Error)
	return r
}

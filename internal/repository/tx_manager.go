package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	// RunInTx runs fn inside a transaction. If ctx already carries one, fn
	// joins it and the outermost caller decides commit or rollback.
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	// RunInNewTx always opens a fresh transaction on the root connection,
	// committed independently of any transaction carried by ctx.
	RunInNewTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

func NewTransactionManager(db *gorm.DB, opts ...*sql.TxOptions) TransactionManager {
	tm := &transactionManager{db: db}
	if len(opts) > 0 {
		tm.opts = opts[0]
	}
	return tm
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return t.RunInNewTx(ctx, fn)
}

func (t *transactionManager) RunInNewTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	}, t.txOptions()...)
}

func (t *transactionManager) txOptions() []*sql.TxOptions {
	if t.opts == nil {
		return nil
	}
	return []*sql.TxOptions{t.opts}
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey).(*gorm.DB)
	return ok
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Postgres implementations pass pgx.Tx;
// repositories accept nil to run against the pool directly.
type Tx = interface{}

// NoTX is passed where an operation intentionally runs outside a transaction.
var NoTX Tx = nil

// TransactionManager begins a transaction, invokes fn, and commits or rolls
// back depending on fn's error.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

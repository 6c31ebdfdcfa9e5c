package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
	q  *queries
}

func newTx(tx *sql.Tx, now func() time.Time) *txStore {
	return &txStore{
		tx: tx,
		q:  newQueries(tx, now),
	}
}

// Close is a no-op; the outer Store owns the database.
func (t *txStore) Close() error { return nil }

// Ping is a no-op inside a transaction, the connection is already held.
func (t *txStore) Ping(ctx context.Context) error { return nil }

// WithTx does not nest.
func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users { return &usersRepo{q: t.q} }

func (t *txStore) AdminAudit() store.AdminAudit { return &auditRepo{q: t.q} }

// ApplyMigrations is a no-op; migrations run before any transaction.
func (t *txStore) ApplyMigrations() error { return nil }

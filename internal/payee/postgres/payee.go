package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payee"
	payeepkg "github.com/frahmantamala/pocket-settlement/internal/payee"
)

type PayeeRepository struct {
	db *sqlx.DB
}

func NewPayeeRepository(db *sqlx.DB) payeepkg.Repository {
	return &PayeeRepository{db: db}
}

const payeeColumns = `id, name, sd_ref, pocket_balance_kop, balance_refreshed_at, created_at, updated_at`

func (r *PayeeRepository) GetByID(ctx context.Context, id int64) (*payee.Payee, error) {
	var p payee.Payee
	query := r.db.Rebind(`SELECT ` + payeeColumns + ` FROM payees WHERE id = ?`)
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrPayeeNotFound
		}
		return nil, fmt.Errorf("get payee: %w", err)
	}
	return &p, nil
}

func (r *PayeeRepository) UpdatePocketBalance(ctx context.Context, id int64, balanceKop int64, refreshedAt time.Time) error {
	query := r.db.Rebind(`UPDATE payees SET pocket_balance_kop = ?, balance_refreshed_at = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, balanceKop, refreshedAt, refreshedAt, id)
	if err != nil {
		return fmt.Errorf("update pocket balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrPayeeNotFound
	}
	return nil
}

package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"billingsync/internal/billing"
	"billingsync/internal/types"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxManager runs account reconciliation in a single transaction. Account
// rows locked inside fn stay locked until commit or rollback.
type TxManager struct {
	pool   TxBeginner
	logger *slog.Logger
}

func NewTxManager(pool TxBeginner, logger *slog.Logger) *TxManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxManager{pool: pool, logger: logger}
}

// RunInTx begins a transaction, hands fn an AccountTx bound to it, and
// commits when fn returns nil.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx billing.AccountTx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.WarnContext(ctx, "transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(ctx, NewAccountRepository(tx, m.logger)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

var _ billing.AccountStore = (*TxManager)(nil)

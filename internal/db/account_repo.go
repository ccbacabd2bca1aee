package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"billingsync/internal/billing"
	"billingsync/internal/types"
)

const accountColumns = `id, name, owner_email, plan, COALESCE(subscription_status, ''),
	billing_customer_id, billing_subscription_id, billing_price_id,
	current_period_ends_at, subscription_ends_at, subscription_started_at, updated_at`

// AccountRepository reads and writes billing state on the accounts table.
// The Lock* methods take a row lock and are meant to run inside a
// transaction (see TxManager).
type AccountRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewAccountRepository(db DBTX, logger *slog.Logger) *AccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountRepository{db: db, logger: logger}
}

// GetByID reads an account without locking.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*types.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepository) LockByID(ctx context.Context, id string) (*types.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *AccountRepository) LockBySubscriptionID(ctx context.Context, subscriptionID string) (*types.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE billing_subscription_id = $1 FOR UPDATE`, subscriptionID)
}

func (r *AccountRepository) LockByCustomerID(ctx context.Context, customerID string) (*types.Account, error) {
	return r.one(ctx, `SELECT `+accountColumns+` FROM accounts WHERE billing_customer_id = $1 ORDER BY updated_at DESC LIMIT 1 FOR UPDATE`, customerID)
}

// Save writes the billing fields of acct. Identity fields are never
// touched.
func (r *AccountRepository) Save(ctx context.Context, acct *types.Account) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			plan = $2,
			subscription_status = NULLIF($3, ''),
			billing_customer_id = $4,
			billing_subscription_id = $5,
			billing_price_id = $6,
			current_period_ends_at = $7,
			subscription_ends_at = $8,
			subscription_started_at = $9,
			updated_at = NOW()
		WHERE id = $1`,
		acct.ID,
		string(acct.Plan),
		string(acct.SubscriptionStatus),
		acct.BillingCustomerID,
		acct.BillingSubscriptionID,
		acct.BillingPriceID,
		acct.CurrentPeriodEndsAt,
		acct.SubscriptionEndsAt,
		acct.SubscriptionStartedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save account billing state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
	}
	r.logger.DebugContext(ctx, "account billing state saved",
		"account_id", acct.ID,
		"plan", acct.Plan,
		"status", acct.SubscriptionStatus,
	)
	return nil
}

func (r *AccountRepository) one(ctx context.Context, sql string, arg string) (*types.Account, error) {
	var (
		a            types.Account
		plan, status string
		updatedAt    time.Time
	)
	err := r.db.QueryRow(ctx, sql, arg).Scan(
		&a.ID,
		&a.Name,
		&a.OwnerEmail,
		&plan,
		&status,
		&a.BillingCustomerID,
		&a.BillingSubscriptionID,
		&a.BillingPriceID,
		&a.CurrentPeriodEndsAt,
		&a.SubscriptionEndsAt,
		&a.SubscriptionStartedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load account", err)
	}
	a.Plan = types.PlanTier(plan)
	a.SubscriptionStatus = types.SubscriptionStatus(status)
	a.UpdatedAt = updatedAt
	return &a, nil
}

var _ billing.AccountTx = (*AccountRepository)(nil)
